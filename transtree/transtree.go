/*

Transtree infers transmission trees (who infected whom, and when)
from dated pathogen phylogenies using a within-host evolutionary
model, with optional penalization by epidemiological covariates.

The basic usage looks like this:

	transtree outbreak.nwk

, this will run the single-chain sampler with default settings.

Several datasets can share parameters across chains:

	transtree -share neg,pi clusterA.nwk clusterB.nwk

To see all the options run:

	transtree -h

*/
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/epiphylo/transtree/checkpoint"
	"github.com/epiphylo/transtree/ctree"
	"github.com/epiphylo/transtree/epi"
	"github.com/epiphylo/transtree/mcmc"
	"github.com/epiphylo/transtree/ptree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("transtree")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("transtree", "transmission tree sampler for dated phylogenies").Version(version)

	// input trees
	treeFileNames = app.Arg("tree", "dated phylogeny in newick format (several files run the parameter-sharing ensemble)").Required().ExistingFiles()

	// dating
	lastDate = app.Flag("lastdate", "date of the most recent sample (by default taken from name_date leaf labels)").Default("0").Float64()
	dateT    = app.Flag("datet", "observation cutoff date (unbounded by default)").Default("inf").String()

	// observation model
	genShape = app.Flag("gen-shape", "generation time gamma shape").Default("2").Float64()
	genScale = app.Flag("gen-scale", "generation time gamma scale").Default("1").Float64()
	samShape = app.Flag("sam-shape", "sampling time gamma shape").Default("2").Float64()
	samScale = app.Flag("sam-scale", "sampling time gamma scale").Default("1").Float64()
	genMean  = app.Flag("gen-mean", "generation time mean (with -gen-sd, overrides shape/scale)").Default("0").Float64()
	genSD    = app.Flag("gen-sd", "generation time standard deviation").Default("0").Float64()
	samMean  = app.Flag("sam-mean", "sampling time mean (with -sam-sd, overrides shape/scale)").Default("0").Float64()
	samSD    = app.Flag("sam-sd", "sampling time standard deviation").Default("0").Float64()

	// starting parameter values
	startNeg  = app.Flag("neg", "starting within-host coalescent rate Ne*g").Default("0.25").Float64()
	startOffR = app.Flag("offr", "starting offspring distribution size").Default("1").Float64()
	startOffP = app.Flag("offp", "starting offspring distribution probability").Default("0.5").Float64()
	startPi   = app.Flag("pi", "starting sampling proportion").Default("0.5").Float64()
	startR0   = app.Flag("r0", "solve the starting off.r (or off.p with -r0-solve-p) from this basic reproduction number").Default("0").Float64()
	r0SolveP  = app.Flag("r0-solve-p", "solve off.p instead of off.r from -r0").Bool()
	optiStart = app.Flag("optistart", "optimize the starting parameter values (L-BFGS-B)").Bool()

	// update toggles
	updateNeg  = app.Flag("update-neg", "update Ne*g").Default("true").Bool()
	updateOffR = app.Flag("update-offr", "update off.r").Default("true").Bool()
	updateOffP = app.Flag("update-offp", "update off.p").Default("true").Bool()
	updatePi   = app.Flag("update-pi", "update pi").Default("true").Bool()
	updateTree = app.Flag("update-tree", "update the combined tree").Default("true").Bool()

	// mcmc parameters
	iterations = app.Flag("iter", "number of MCMC iterations").Default("10000").Int()
	thinning   = app.Flag("thin", "record every N iterations").Default("10").Int()
	report     = app.Flag("report", "report every N iterations").Default("10").Int()
	accept     = app.Flag("accept", "report acceptance rate every N iterations").Default("200").Int()

	// ensemble parameters
	share   = app.Flag("share", "comma-separated parameters shared across chains (neg,off.r,off.p,pi)").Default("").String()
	piBetaA = app.Flag("pi-beta-a", "beta prior shape a for the shared sampling proportion (0 disables)").Default("0").Float64()
	piBetaB = app.Flag("pi-beta-b", "beta prior shape b for the shared sampling proportion").Default("0").Float64()

	// epidemiological data
	contactsF  = app.Flag("contacts", "contact pairs CSV (nameA,nameB)").ExistingFile()
	exposureF  = app.Flag("exposure", "exposure windows CSV (name,start,end)").ExistingFile()
	locationsF = app.Flag("locations", "host locations CSV (name,location)").ExistingFile()
	penalize   = app.Flag("penalize", "penalize pTTree by epidemiological rule violations").Bool()
	breakdown  = app.Flag("breakdown", "track the penalty breakdown in every sample").Bool()
	pRuleBreak = app.Flag("prulebreak", "prior probability that a penalty rule is valid").Default("0.5").Float64()

	// checkpointing
	checkpointF  = app.Flag("checkpoint", "bolt database file for chain checkpoints").String()
	cpSeconds    = app.Flag("cinterval", "minimum seconds between checkpoint saves").Default("30").Float64()
	resumeFromCp = app.Flag("resume", "resume parameter values from the checkpoint database").Bool()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write sampling trajectory to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// readTree loads and dates one phylogeny.
func readTree(fn string) (*ptree.Tree, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ptree.ParseNewick(f)
	if err != nil {
		return nil, err
	}

	last := *lastDate
	if last == 0 {
		for leaf := range t.Leaves() {
			if d, ok := ptree.LeafDate(leaf.Name); ok && d > last {
				last = d
			}
		}
	}
	if last == 0 {
		log.Warningf("%s: no -lastdate and no dated leaf labels, dating from 0", fn)
	}
	t.AssignTimes(last)
	return t, nil
}

// parseShare converts the -share flag into a SharingSpec.
func parseShare(s string) (spec mcmc.SharingSpec, err error) {
	if s == "" {
		return spec, nil
	}
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		found := false
		for id := mcmc.Neg; id < mcmc.NumParameters; id++ {
			if id.String() == name {
				spec[id] = true
				found = true
			}
		}
		if !found {
			return spec, fmt.Errorf("unknown parameter in -share: %s", name)
		}
	}
	return spec, nil
}

// hyper assembles the observation-model hyperparameters, converting
// mean/sd specifications when given.
func hyper() mcmc.HyperParams {
	cutoff := math.Inf(+1)
	if *dateT != "inf" {
		if _, err := fmt.Sscanf(*dateT, "%f", &cutoff); err != nil {
			log.Fatal("Cannot parse -datet: ", err)
		}
	}
	if *genMean > 0 && *genSD > 0 && *samMean > 0 && *samSD > 0 {
		return mcmc.HyperFromMeanSD(*genMean, *genSD, *samMean, *samSD, cutoff)
	}
	return mcmc.HyperParams{
		GenShape: *genShape, GenScale: *genScale,
		SamShape: *samShape, SamScale: *samScale,
		DateT: cutoff,
	}
}

// loadEpiData reads the covariate CSV files, returning nil when none
// is given.
func loadEpiData() (*epi.Data, error) {
	if *contactsF == "" && *exposureF == "" && *locationsF == "" {
		return nil, nil
	}
	data := epi.NewData()
	load := func(fn string, read func(f *os.File) error) error {
		if fn == "" {
			return nil
		}
		f, err := os.Open(fn)
		if err != nil {
			return err
		}
		defer f.Close()
		return read(f)
	}
	if err := load(*contactsF, func(f *os.File) error { return data.ReadContacts(f) }); err != nil {
		return nil, err
	}
	if err := load(*exposureF, func(f *os.File) error { return data.ReadExposure(f) }); err != nil {
		return nil, err
	}
	if err := load(*locationsF, func(f *os.File) error { return data.ReadLocations(f) }); err != nil {
		return nil, err
	}
	return data, nil
}

func run() (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	trees := make([]*ptree.Tree, 0, len(*treeFileNames))
	for _, fn := range *treeFileNames {
		t, err := readTree(fn)
		if err != nil {
			log.Fatalf("Error reading %s: %v", fn, err)
		}
		log.Infof("Read phylogeny %s: %d leaves", fn, t.NLeaves())
		trees = append(trees, t)
	}

	h := hyper()
	log.Infof("Generation time: gamma(%g, %g); sampling time: gamma(%g, %g); cutoff: %v",
		h.GenShape, h.GenScale, h.SamShape, h.SamScale, h.DateT)

	s := mcmc.NewSettings()
	s.Iterations = *iterations
	s.Thinning = *thinning
	s.RepPeriod = *report
	s.AccPeriod = *accept
	s.Hyper = h
	s.Seed = *seed
	s.OptiStart = *optiStart
	s.UpdateTree = *updateTree
	s.Update[mcmc.Neg] = *updateNeg
	s.Update[mcmc.OffR] = *updateOffR
	s.Update[mcmc.OffP] = *updateOffP
	s.Update[mcmc.Pi] = *updatePi
	s.Start = mcmc.ParameterBlock{Neg: *startNeg, OffR: *startOffR, OffP: *startOffP, Pi: *startPi}
	s.Penalize = *penalize
	s.TrackBreakdown = *breakdown
	s.PRuleBreak = *pRuleBreak
	s.PiBetaA = *piBetaA
	s.PiBetaB = *piBetaB

	if *startR0 > 0 {
		if *r0SolveP {
			s.Start.OffP = mcmc.SolveP(*startR0, s.Start.OffR)
			log.Infof("Solved off.p=%f from R0=%f", s.Start.OffP, *startR0)
		} else {
			s.Start.OffR = mcmc.SolveR(*startR0, s.Start.OffP)
			log.Infof("Solved off.r=%f from R0=%f", s.Start.OffR, *startR0)
		}
	}

	spec, err := parseShare(*share)
	if err != nil {
		log.Fatal(err)
	}
	s.Share = spec

	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating trajectory file: ", err)
		}
		defer f.Close()
		s.Output = f
	} else {
		s.Output = os.Stdout
	}

	if *checkpointF != "" {
		db, err := bolt.Open(*checkpointF, 0666, nil)
		if err != nil {
			log.Fatal("Error opening checkpoint database: ", err)
		}
		defer db.Close()
		s.Checkpoint = checkpoint.NewIO(db, []byte("chain"), *cpSeconds)
		if *resumeFromCp {
			data, err := s.Checkpoint.Load()
			if err != nil {
				log.Fatal("Error loading checkpoint: ", err)
			}
			if data != nil {
				for id := mcmc.Neg; id < mcmc.NumParameters; id++ {
					if v, ok := data.Parameters[id.String()]; ok {
						s.Start.Set(id, v)
					}
				}
				log.Noticef("Resuming from checkpoint at iteration %d", data.Iter)
			}
		}
	}

	data, err := loadEpiData()
	if err != nil {
		log.Fatal("Error reading epidemiological data: ", err)
	}
	var pen mcmc.PenaltyEvaluator
	if data != nil {
		pen = epi.NewEvaluator(data)
		log.Info("Loaded epidemiological data")
	} else if *penalize || *breakdown {
		log.Fatal("-penalize/-breakdown need epidemiological data files")
	}

	builder := ctree.Builder{GenShape: h.GenShape, GenScale: h.GenScale}
	proposal := ctree.Proposal{RootWindow: 2 * h.GenShape * h.GenScale}
	extractor := ctree.Extractor{}
	lik := epi.Likelihood{
		GenShape: h.GenShape, GenScale: h.GenScale,
		SamShape: h.SamShape, SamScale: h.SamScale,
		DateT: h.DateT,
	}

	if len(trees) == 1 {
		sampler := mcmc.NewSampler(builder, proposal, extractor, lik, pen, s)
		trace, err := sampler.Run(trees[0])
		if err != nil {
			log.Fatal(err)
		}
		summary.Chains = []ChainSummary{newChainSummary(trace, s.Iterations/s.Thinning)}
	} else {
		log.Infof("Running the ensemble sampler on %d datasets, shared: %s", len(trees), *share)
		ensemble := mcmc.NewEnsemble(builder, proposal, extractor, lik, pen, s)
		traces, err := ensemble.Run(trees)
		if err != nil {
			log.Fatal(err)
		}
		for _, trace := range traces {
			summary.Chains = append(summary.Chains, newChainSummary(trace, s.Iterations/s.Thinning))
		}
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()
	return summary
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file: ", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "transtree")
	logging.SetLevel(level, "mcmc")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line: ", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	runtime.GOMAXPROCS(*nThreads)
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary := run()
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file: ", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
