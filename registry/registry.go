package registry

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/wacker-dev/wackerd/errors"
)

var programsBucket = []byte("programs")

// Registry is the supervisor's contract with durable storage: insert,
// remove, full iteration, and a flush. Values are opaque
// byte strings the supervisor controls (ProgramMeta's binary encoding).
type Registry interface {
	Insert(id string, meta ProgramMeta) error
	Remove(id string) error
	Iter(fn func(id string, meta ProgramMeta) error) error
	Flush() error
	Close() error
}

// boltRegistry is the default Registry, backed by a single-bucket bbolt
// database file.
type boltRegistry struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the registry database at path.
func Open(path string) (Registry, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, registryErr("open", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(programsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, registryErr("init bucket", err)
	}
	return &boltRegistry{db: db}, nil
}

func (r *boltRegistry) Insert(id string, meta ProgramMeta) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(programsBucket).Put([]byte(id), Encode(meta))
	})
	if err != nil {
		return registryErr("insert "+id, err)
	}
	return nil
}

func (r *boltRegistry) Remove(id string) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(programsBucket).Delete([]byte(id))
	})
	if err != nil {
		return registryErr("remove "+id, err)
	}
	return nil
}

func (r *boltRegistry) Iter(fn func(id string, meta ProgramMeta) error) error {
	return r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(programsBucket).ForEach(func(k, v []byte) error {
			meta, err := Decode(v)
			if err != nil {
				return registryErr("decode "+string(k), err)
			}
			return fn(string(k), meta)
		})
	})
}

// Flush forces the database file to stable storage. bbolt already fsyncs
// on every Update commit, so this is a cheap best-effort sync for callers
// that want an explicit durability checkpoint (e.g. before shutdown).
func (r *boltRegistry) Flush() error {
	return r.db.Sync()
}

func (r *boltRegistry) Close() error {
	return r.db.Close()
}

func registryErr(op string, cause error) error {
	return &errors.Error{
		Phase:  errors.PhaseRegistry,
		Kind:   errors.KindIO,
		Detail: fmt.Sprintf("registry %s", op),
		Cause:  cause,
	}
}
