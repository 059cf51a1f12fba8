package peerbolt

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	bPeers = "peers"

	defaultTO = 2 * time.Second
)

var ErrEmptyName = errors.New("peerbolt: empty peer name")

// Record is the stored form of one address book entry.
type Record struct {
	Addr     string    `msgpack:"a"`
	LastSeen time.Time `msgpack:"t"`
}

// Store is a BoltDB-backed address book. It only remembers where peers
// were last seen so a restarted node can find the network again.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("peerbolt: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bPeers))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put records addr for name.
func (s *Store) Put(name, addr string) error {
	if name == "" {
		return ErrEmptyName
	}
	val, err := msgpack.Marshal(Record{Addr: addr, LastSeen: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bPeers)).Put([]byte(name), val)
	})
}

func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bPeers)).Delete([]byte(name))
	})
}

// Get returns the record stored for name.
func (s *Store) Get(name string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bPeers)).Get([]byte(name))
		if raw == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(raw, &rec)
	})
	return rec, found, err
}

// LoadAll visits every entry in name order.
func (s *Store) LoadAll(fn func(name, addr string) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bPeers)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				// Corruption: skip the entry, keep the rest usable.
				continue
			}
			if rec.Addr == "" {
				continue
			}
			if err := fn(string(k), rec.Addr); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bPeers)).Stats().KeyN
		return nil
	})
	return n, err
}
