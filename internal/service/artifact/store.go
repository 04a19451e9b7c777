// Package artifact owns synthesized audio between synthesis and client fetch.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

var (
	ErrNotFound = errors.New("audio artifact not found")
	ErrCorrupt  = errors.New("audio artifact empty or corrupt")
)

const defaultRetention = 15 * time.Minute

// Store indexes artifacts by handle and reclaims them after the retention window.
type Store struct {
	files     FileStore
	retention time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	index map[string]speechmodel.Artifact
}

// NewStore wraps files with a handle index.
func NewStore(files FileStore, retention time.Duration) *Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Store{
		files:     files,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		index:     make(map[string]speechmodel.Artifact),
	}
}

// Retention reports how long a saved artifact stays fetchable.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// Save verifies data and persists it. The handle is only returned once the
// bytes are stored.
func (s *Store) Save(ctx context.Context, data []byte, format string, segments int) (*speechmodel.Artifact, error) {
	format = audio.Normalize(format)
	if err := audio.Verify(data, format); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	now := s.now()
	art := speechmodel.Artifact{
		Handle:      uuid.NewString(),
		Format:      format,
		ContentType: audio.ContentType(format),
		Size:        int64(len(data)),
		Segments:    segments,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.retention),
	}

	if err := s.files.Put(ctx, objectKey(art.Handle), data, art.ContentType); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	s.mu.Lock()
	s.index[art.Handle] = art
	s.mu.Unlock()

	return &art, nil
}

// Fetch returns the artifact metadata and bytes. ErrNotFound covers unknown
// and expired handles; ErrCorrupt covers stored bytes that fail verification.
func (s *Store) Fetch(ctx context.Context, handle string) (*speechmodel.Artifact, []byte, error) {
	if _, err := uuid.Parse(handle); err != nil {
		return nil, nil, ErrNotFound
	}

	s.mu.RLock()
	art, ok := s.index[handle]
	s.mu.RUnlock()
	if !ok || !art.ExpiresAt.After(s.now()) {
		return nil, nil, ErrNotFound
	}

	data, err := s.files.Get(ctx, objectKey(handle))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("read artifact %s: %w", handle, err)
	}
	if err := audio.Verify(data, art.Format); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	art.Size = int64(len(data))
	return &art, data, nil
}

// Reap deletes every artifact whose retention window has closed.
func (s *Store) Reap(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for handle, art := range s.index {
		if !art.ExpiresAt.After(now) {
			expired = append(expired, handle)
			delete(s.index, handle)
		}
	}
	s.mu.Unlock()

	for _, handle := range expired {
		if err := s.files.Delete(ctx, objectKey(handle)); err != nil {
			log.Printf("[artifact] delete %s failed: %v", handle, err)
		}
	}
	return len(expired)
}

// Run reaps on interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reap(ctx); n > 0 {
				log.Printf("[artifact] reclaimed %d expired artifact(s)", n)
			}
		}
	}
}

func objectKey(handle string) string {
	return "audio/" + handle
}
