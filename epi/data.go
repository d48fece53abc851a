package epi

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/gonum/matrix/mat64"
)

// Data holds the epidemiological covariates: a symmetric host-contact
// matrix, per-host exposure windows and host locations. Hosts are
// identified by leaf labels.
type Data struct {
	names    []string
	idx      map[string]int
	contact  *mat64.Dense
	exposure map[string][2]float64
	location map[string]string
}

// NewData creates an empty dataset.
func NewData() *Data {
	return &Data{
		idx:      make(map[string]int),
		exposure: make(map[string][2]float64),
		location: make(map[string]string),
	}
}

func (d *Data) hostIndex(name string) int {
	if i, ok := d.idx[name]; ok {
		return i
	}
	d.idx[name] = len(d.names)
	d.names = append(d.names, name)
	return len(d.names) - 1
}

// ReadContacts loads contact pairs from CSV rows of the form
// nameA,nameB. Contacts are symmetric.
func (d *Data) ReadContacts(rd io.Reader) error {
	recs, err := csv.NewReader(rd).ReadAll()
	if err != nil {
		return err
	}
	type pair struct{ a, b int }
	var pairs []pair
	for _, rec := range recs {
		if len(rec) != 2 {
			return fmt.Errorf("contact row needs 2 fields, got %d", len(rec))
		}
		pairs = append(pairs, pair{d.hostIndex(rec[0]), d.hostIndex(rec[1])})
	}
	n := len(d.names)
	d.contact = mat64.NewDense(n, n, nil)
	for _, p := range pairs {
		d.contact.Set(p.a, p.b, 1)
		d.contact.Set(p.b, p.a, 1)
	}
	return nil
}

// ReadExposure loads exposure windows from CSV rows of the form
// name,start,end.
func (d *Data) ReadExposure(rd io.Reader) error {
	recs, err := csv.NewReader(rd).ReadAll()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if len(rec) != 3 {
			return fmt.Errorf("exposure row needs 3 fields, got %d", len(rec))
		}
		start, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return err
		}
		end, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return err
		}
		d.hostIndex(rec[0])
		d.exposure[rec[0]] = [2]float64{start, end}
	}
	return nil
}

// ReadLocations loads host locations from CSV rows of the form
// name,location.
func (d *Data) ReadLocations(rd io.Reader) error {
	recs, err := csv.NewReader(rd).ReadAll()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if len(rec) != 2 {
			return fmt.Errorf("location row needs 2 fields, got %d", len(rec))
		}
		d.hostIndex(rec[0])
		d.location[rec[0]] = rec[1]
	}
	return nil
}

// inContact returns true if a contact between the two named hosts is
// recorded, or if either host is unknown to the contact data (absence
// of data is not a violation).
func (d *Data) inContact(a, b string) bool {
	ia, oka := d.idx[a]
	ib, okb := d.idx[b]
	if !oka || !okb {
		return true
	}
	r, c := d.contact.Dims()
	if ia >= r || ib >= c {
		return true
	}
	return d.contact.At(ia, ib) > 0 || d.contact.At(ib, ia) > 0
}

// check validates internal consistency; a failure here surfaces as a
// NaN penalty.
func (d *Data) check() error {
	if d.contact != nil {
		r, c := d.contact.Dims()
		if r != c {
			return fmt.Errorf("contact matrix is %dx%d, must be square", r, c)
		}
	}
	for name, w := range d.exposure {
		if w[0] > w[1] {
			return fmt.Errorf("exposure window of %s ends before it starts", name)
		}
	}
	return nil
}
