package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/defistate/amm-pool-engine/pool"
	badger "github.com/dgraph-io/badger/v4"
)

var poolPrefix = []byte("pool/")

// ErrNotOpened is returned by every method of a nil or closed Store.
var ErrNotOpened = errors.New("store: not opened")

// Store persists one pool.Record per pool id in Badger. It implements registry.Journal.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	Path          string
	InMemory      bool   // Path is ignored; nothing touches disk.
	EncryptionKey []byte // 16, 24 or 32 bytes; nil disables encryption at rest.
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("store: path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. It is safe to call on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func poolKey(id pool.ID) []byte {
	return append(append([]byte{}, poolPrefix...), id.Hex()...)
}

// Record writes every pool of diff in a single transaction, so a diff is persisted entirely or not at all.
func (s *Store) Record(diff pool.SystemDiff) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	if diff.IsEmpty() {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, group := range [][]pool.Pool{diff.Additions, diff.Updates} {
			for _, p := range group {
				val, err := json.Marshal(p.Record())
				if err != nil {
					return fmt.Errorf("store: encode pool %s: %w", p.ID.Hex(), err)
				}
				if err := txn.Set(poolKey(p.ID), val); err != nil {
					return fmt.Errorf("store: write pool %s: %w", p.ID.Hex(), err)
				}
			}
		}
		return nil
	})
}

// Pool returns the persisted pool for id. The boolean is false when no record exists.
func (s *Store) Pool(id pool.ID) (pool.Pool, bool, error) {
	if s == nil || s.db == nil {
		return pool.Pool{}, false, ErrNotOpened
	}

	var rec pool.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(poolKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return pool.Pool{}, false, nil
	}
	if err != nil {
		return pool.Pool{}, false, fmt.Errorf("store: read pool %s: %w", id.Hex(), err)
	}

	p, err := pool.FromRecord(rec)
	if err != nil {
		return pool.Pool{}, false, fmt.Errorf("store: %w", err)
	}
	return p, true, nil
}

// Load returns every persisted pool, validated and ordered by id.
func (s *Store) Load() ([]pool.Pool, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}

	var pools []pool.Pool
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: poolPrefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec pool.Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			p, err := pool.FromRecord(rec)
			if err != nil {
				return err
			}
			pools = append(pools, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}

	pool.SortByID(pools)
	return pools, nil
}
