// Package checkpoint stores periodic MCMC chain snapshots in a bolt
// database so an interrupted run can be resumed from its last
// position.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// mainBucket is the bucket name for all chain snapshots.
var mainBucket = []byte("main")

// Data is one chain snapshot.
type Data struct {
	Parameters map[string]float64 `json:"parameters"`
	PTTree     float64            `json:"pTTree"`
	PPTree     float64            `json:"pPTree"`
	Iter       int                `json:"iter"`
	Final      bool               `json:"final"`
}

// IO provides time-throttled checkpoint saving and loading for one
// chain key.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewIO creates a checkpoint IO saving at most every seconds seconds.
func NewIO(db *bolt.DB, key []byte, seconds float64) *IO {
	return &IO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save stores a snapshot.
func (s *IO) Save(data *Data) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = saveData(s.db, s.key, dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the stored snapshot, or nil if there is none.
func (s *IO) Load() (*Data, error) {
	b, err := loadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	var data *Data
	if err = json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data == nil || len(data.Parameters) == 0 {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found finished chain checkpoint (iter=%v, pTTree=%v, pPTree=%v)", data.Iter, data.PTTree, data.PPTree)
	} else {
		log.Noticef("Found unfinished chain checkpoint (iter=%v, pTTree=%v, pPTree=%v)", data.Iter, data.PTTree, data.PPTree)
	}
	return data, nil
}

// Old returns true if the last checkpoint save was too long ago.
func (s *IO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets the last checkpoint time to now.
func (s *IO) SetNow() {
	s.last = time.Now()
}

// saveData saves a value in the bolt database.
func saveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(mainBucket)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// loadData loads a value from the bolt database.
func loadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(mainBucket)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
