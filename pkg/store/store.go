// Copyright 2025 Certen Protocol
//
// Package store implements the authority store (spec.md §4.1): the
// durable, crash-consistent, concurrently-accessible table model backing
// object state, transaction and certificate bookkeeping, execution
// effects, and the owner and shared-object indexes.
//
// Tables are logical column families inside a single bbolt database file.
// bbolt's single-writer transaction model gives every mutation here the
// "batch writes are serialized by the store" guarantee spec.md §5
// requires; the per-object sharded mutex in lockservice layers the
// documented logical-exclusion mechanism on top so independent objects
// still execute concurrently up to that serialization point.
package store

import (
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/lockservice"
)

// Logger is the narrow logging interface used throughout this module,
// matching the teacher's convention of a small injectable interface
// wrapping the standard library's *log.Logger rather than a structured
// logging package.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Store wraps the bbolt database and lock service and exposes the
// operations of spec.md §4.1-§4.2.
type Store struct {
	db      *bbolt.DB
	lock    *lockservice.Service
	log     Logger
	archive *ArchiveStore

	notifyMu sync.Mutex
	notifyCh chan struct{} // closed and replaced on every pending-cert change
}

// Option configures Store construction.
type Option func(*Store)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithArchive mirrors every InsertNewEpochInfo/PersistBatch call into the
// given relational archive in addition to the bbolt tables. A nil a
// (the zero value returned by OpenArchive when archiving is disabled)
// makes this a no-op, matching ArchiveStore's own nil-receiver contract.
func WithArchive(a *ArchiveStore) Option {
	return func(s *Store) { s.archive = a }
}

// Open opens (creating if absent) the bbolt database at path, initializes
// all logical tables, and wires an owned-object lock service sharing the
// same handle.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}

	lockSvc, err := lockservice.Open(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: open lock service: %w", err)
	}

	s := &Store{
		db:       db,
		lock:     lockSvc,
		log:      nopLogger{},
		notifyCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: recover: %w", err)
	}

	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// notifyPendingChanged wakes every goroutine waiting on a channel
// obtained from PendingChanged. It implements the "condition variable with
// level-triggered semantics" of spec.md §5: callers re-check the
// condition themselves after waking rather than receiving a payload, so a
// notification that races a check is never lost.
func (s *Store) notifyPendingChanged() {
	s.notifyMu.Lock()
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})
	s.notifyMu.Unlock()
}

// PendingChanged returns a channel that closes the next time the pending
// execution queue changes (a certificate is added or removed). Callers
// must re-check their condition after the channel closes, not assume the
// specific change they were waiting for occurred.
func (s *Store) PendingChanged() <-chan struct{} {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.notifyCh
}

// DB exposes the underlying handle to sibling packages in this module
// (sharedseq, execution) that need to participate in the same atomic
// transactions as Store's own writes. Not for use outside this repo's
// tightly coupled components.
func (s *Store) DB() *bbolt.DB { return s.db }

// Locks exposes the lock service for the same reason.
func (s *Store) Locks() *lockservice.Service { return s.lock }
