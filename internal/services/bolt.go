package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	bolt "go.etcd.io/bbolt"

	"github.com/sohal70760/islamicai-webui/internal/models"
)

// ErrSessionNotFound signals a session id that does not resolve to a stored
// record. Malformed stored data is reported the same way.
var ErrSessionNotFound = errors.New("session not found")

// DefaultMaxSessions bounds the session index.
const DefaultMaxSessions = 20

var (
	sessionsBucket = []byte("sessions")
	indexBucket    = []byte("index")
	indexKey       = []byte("sessions")
)

// BoltStore persists sessions in a BoltDB file: one record per session plus
// a single bounded, most-recently-updated-first index. Reads fail closed;
// a corrupt index or record is treated as absent, never as a crash.
type BoltStore struct {
	db          *bolt.DB
	maxSessions int
	logger      *slog.Logger
}

// NewBoltStore opens (creating if needed) the session database at path. The
// index is capped at maxSessions entries; zero or negative values fall back
// to DefaultMaxSessions.
func NewBoltStore(path string, maxSessions int, logger *slog.Logger) (*BoltStore, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, maxSessions: maxSessions, logger: logger}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ReadIndex returns the session index, most recently updated first. It never
// fails: an absent, corrupt, or unreadable index yields an empty slice.
func (s *BoltStore) ReadIndex(context.Context) []models.SessionMeta {
	var metas []models.SessionMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		if b == nil {
			return nil
		}
		raw := b.Get(indexKey)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &metas)
	})
	if err != nil {
		s.logger.Warn("Failed to read session index", slog.String("err", err.Error()))
		return nil
	}
	return metas
}

// WriteIndex sorts the entries by updatedAt descending, truncates to the
// store's bound, and persists the result. Session records evicted from the
// index are pruned so the database does not grow without bound.
func (s *BoltStore) WriteIndex(_ context.Context, items []models.SessionMeta) error {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b models.SessionMeta) int {
		switch {
		case a.UpdatedAt > b.UpdatedAt:
			return -1
		case a.UpdatedAt < b.UpdatedAt:
			return 1
		default:
			return 0
		}
	})

	var evicted []models.SessionMeta
	if len(sorted) > s.maxSessions {
		evicted = sorted[s.maxSessions:]
		sorted = sorted[:s.maxSessions]
	}

	raw, err := json.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(sessionsBucket); b != nil {
			for _, meta := range evicted {
				if err := b.Delete([]byte(meta.ID)); err != nil {
					return fmt.Errorf("failed to prune session %s: %w", meta.ID, err)
				}
			}
		}
		b := tx.Bucket(indexBucket)
		if b == nil {
			return nil
		}
		return b.Put(indexKey, raw)
	})
}

// ReadSession returns the stored session or ErrSessionNotFound. Malformed
// stored data is reported as not found rather than as a decode failure.
func (s *BoltStore) ReadSession(_ context.Context, id string) (models.Session, error) {
	var session models.Session
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &session); err != nil {
			s.logger.Warn("Discarding malformed session record",
				slog.String("sessionID", id),
				slog.String("err", err.Error()))
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	if !found {
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// WriteSession persists the full session record, then moves its index entry
// to the front of the index.
func (s *BoltStore) WriteSession(ctx context.Context, session models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return nil
		}
		return b.Put([]byte(session.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	index := s.ReadIndex(ctx)
	index = slices.DeleteFunc(index, func(m models.SessionMeta) bool { return m.ID == session.ID })
	index = append([]models.SessionMeta{session.Meta()}, index...)
	return s.WriteIndex(ctx, index)
}

// DeleteSession removes the session record and its index entry.
func (s *BoltStore) DeleteSession(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	index := s.ReadIndex(ctx)
	index = slices.DeleteFunc(index, func(m models.SessionMeta) bool { return m.ID == id })
	return s.WriteIndex(ctx, index)
}
