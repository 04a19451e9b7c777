package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

const sessionKeyPrefix = "session/"

// lockStripes bounds the writer mutexes; a session always maps to the same one.
const lockStripes = 64

// BadgerOptions configures the persistent store.
type BadgerOptions struct {
	Options

	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs badger without disk persistence; used by tests.
	InMemory bool
}

// sessionRecord is the msgpack value stored per session key.
type sessionRecord struct {
	Session chat.Session `msgpack:"session"`
	Turns   []chat.Turn  `msgpack:"turns"`
}

// BadgerStore persists sessions in BadgerDB. Expiry uses badger's native
// entry TTL, so an idle session disappears without a sweep.
type BadgerStore struct {
	db    *badger.DB
	opts  Options
	now   func() time.Time
	seq   *sequencer
	locks [lockStripes]sync.Mutex
}

// NewBadgerStore opens (or creates) the badger database.
func NewBadgerStore(bopts BadgerOptions) (*BadgerStore, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("chat: BadgerOptions.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(bopts.Dir).WithLogger(badgerLogger{})
	if bopts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	return &BadgerStore{
		db:   db,
		opts: bopts.Options.normalized(),
		now:  func() time.Time { return time.Now().UTC() },
		seq:  newSequencer(),
	}, nil
}

// Create provisions an anonymous session.
func (s *BadgerStore) Create(ctx context.Context) (chat.Session, error) {
	return s.Ensure(ctx, uuid.NewString())
}

// Ensure loads or creates the session and refreshes its TTL.
func (s *BadgerStore) Ensure(_ context.Context, sessionID string) (chat.Session, error) {
	if err := ValidateID(sessionID); err != nil {
		return chat.Session{}, err
	}

	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	var out chat.Session
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := s.load(txn, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			rec = s.newRecord(sessionID)
		} else if err != nil {
			return err
		}
		s.touch(&rec)
		out = rec.Session
		return s.save(txn, rec)
	})
	return out, err
}

// Get retrieves a session and refreshes its TTL.
func (s *BadgerStore) Get(_ context.Context, sessionID string) (chat.Session, error) {
	rec, err := s.readAndTouch(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return rec.Session, nil
}

// Append stores the turn and trims history to the configured maximum.
func (s *BadgerStore) Append(_ context.Context, sessionID string, turn chat.Turn) (chat.Turn, error) {
	if err := ValidateID(sessionID); err != nil {
		return chat.Turn{}, err
	}

	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	stored := prepareTurn(turn, s.now())
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := s.load(txn, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			rec = s.newRecord(sessionID)
		} else if err != nil {
			return err
		}

		rec.Turns = trimHistory(append(rec.Turns, stored), s.opts.MaxTurns)
		rec.Session.TurnCount = len(rec.Turns)
		s.touch(&rec)
		return s.save(txn, rec)
	})
	if err != nil {
		return chat.Turn{}, err
	}
	return stored.Clone(), nil
}

// History returns the stored turns, oldest first.
func (s *BadgerStore) History(_ context.Context, sessionID string) ([]chat.Turn, error) {
	rec, err := s.readAndTouch(sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Turns, nil
}

// Clear deletes the session record.
func (s *BadgerStore) Clear(_ context.Context, sessionID string) error {
	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := s.load(txn, sessionID); err != nil {
			return err
		}
		return txn.Delete(sessionKey(sessionID))
	})
}

// Acquire grants the session's turn slot in FIFO order.
func (s *BadgerStore) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, err
	}
	return s.seq.acquire(ctx, sessionID)
}

// Run periodically garbage-collects the value log until ctx is cancelled.
func (s *BadgerStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
						log.Printf("[session] value log gc failed: %v", err)
					}
					break
				}
			}
		}
	}
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) readAndTouch(sessionID string) (sessionRecord, error) {
	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	var rec sessionRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		rec, err = s.load(txn, sessionID)
		if err != nil {
			return err
		}
		s.touch(&rec)
		return s.save(txn, rec)
	})
	return rec, err
}

func (s *BadgerStore) load(txn *badger.Txn, sessionID string) (sessionRecord, error) {
	item, err := txn.Get(sessionKey(sessionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return sessionRecord{}, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var rec sessionRecord
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &rec)
	})
	if err != nil {
		return sessionRecord{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *BadgerStore) save(txn *badger.Txn, rec sessionRecord) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.Session.ID, err)
	}
	entry := badger.NewEntry(sessionKey(rec.Session.ID), data).WithTTL(s.opts.TTL)
	return txn.SetEntry(entry)
}

func (s *BadgerStore) newRecord(sessionID string) sessionRecord {
	now := s.now()
	return sessionRecord{
		Session: chat.Session{
			ID:        sessionID,
			CreatedAt: now,
		},
	}
}

func (s *BadgerStore) touch(rec *sessionRecord) {
	now := s.now()
	rec.Session.LastActive = now
	rec.Session.ExpiresAt = now.Add(s.opts.TTL)
}

func (s *BadgerStore) lock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%lockStripes]
}

func sessionKey(sessionID string) []byte {
	return []byte(sessionKeyPrefix + sessionID)
}

// badgerLogger routes badger output through log.Printf, dropping debug and info.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[session] badger ERROR: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[session] badger WARN: "+f, v...) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}

var _ Store = (*BadgerStore)(nil)
