package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func tempDB(tst *testing.T) *bolt.DB {
	dir, err := os.MkdirTemp("", "checkpoint")
	if err != nil {
		tst.Fatal("Error creating temporary directory: ", err)
	}
	tst.Cleanup(func() { os.RemoveAll(dir) })

	db, err := bolt.Open(filepath.Join(dir, "test.db"), 0666, nil)
	if err != nil {
		tst.Fatal("Error opening database: ", err)
	}
	tst.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoad(tst *testing.T) {
	db := tempDB(tst)
	io := NewIO(db, []byte("chain"), 30)

	data := &Data{
		Parameters: map[string]float64{"neg": 0.25, "pi": 0.5},
		PTTree:     -12.5,
		PPTree:     -3.25,
		Iter:       42,
		Final:      false,
	}
	if err := io.Save(data); err != nil {
		tst.Fatal("Error saving: ", err)
	}

	got, err := io.Load()
	if err != nil {
		tst.Fatal("Error loading: ", err)
	}
	if got == nil {
		tst.Fatal("Expected a checkpoint")
	}
	if got.Iter != 42 || got.PTTree != -12.5 || got.PPTree != -3.25 || got.Final {
		tst.Error("Bad checkpoint:", got)
	}
	if got.Parameters["neg"] != 0.25 || got.Parameters["pi"] != 0.5 {
		tst.Error("Bad parameters:", got.Parameters)
	}

	// a later save overwrites
	data.Iter = 100
	data.Final = true
	if err := io.Save(data); err != nil {
		tst.Fatal("Error saving: ", err)
	}
	got, err = io.Load()
	if err != nil {
		tst.Fatal("Error loading: ", err)
	}
	if got.Iter != 100 || !got.Final {
		tst.Error("Expected the final checkpoint, got", got)
	}
}

func TestLoadMissing(tst *testing.T) {
	db := tempDB(tst)
	io := NewIO(db, []byte("nosuchchain"), 30)
	got, err := io.Load()
	if err != nil {
		tst.Fatal("Error loading: ", err)
	}
	if got != nil {
		tst.Error("Expected no checkpoint, got", got)
	}
}

func TestNilDB(tst *testing.T) {
	io := NewIO(nil, []byte("chain"), 30)
	if err := io.Save(&Data{Iter: 1}); err != nil {
		tst.Error("Save on a nil database must be a no-op, got: ", err)
	}
	if got, err := io.Load(); err != nil || got != nil {
		tst.Error("Load on a nil database must return nothing:", got, err)
	}
}

func TestOld(tst *testing.T) {
	io := NewIO(nil, []byte("chain"), 1e6)
	if !io.Old() {
		tst.Error("A fresh IO must be old")
	}
	io.SetNow()
	if io.Old() {
		tst.Error("Not old right after SetNow")
	}

	short := NewIO(nil, []byte("chain"), 0)
	short.SetNow()
	time.Sleep(10 * time.Millisecond)
	if !short.Old() {
		tst.Error("Expected old with a zero interval")
	}
}
