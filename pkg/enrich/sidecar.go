package enrich

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/majoor/assetindex/internal/logger"
)

// sidecarSuffix names the JSON file written alongside an asset when
// sidecar sync is enabled, carrying the user-authoritative rating/tags
// so they survive outside the index database.
const sidecarSuffix = ".mjr-meta.json"

// SidecarWrite is one pending rating/tag write-back.
type SidecarWrite struct {
	Filepath string
	Rating   int
	Tags     []string
}

type sidecarPayload struct {
	Rating int      `json:"rating"`
	Tags   []string `json:"tags"`
}

// SidecarSync asynchronously mirrors rating/tag edits back to a sidecar
// file next to the asset, best-effort. Per the independence requirement
// between it and the enrichment Queue, it keeps its own bounded buffer
// with no shared lock; when full it evicts the oldest pending write
// rather than blocking the caller or the enrichment path.
type SidecarSync struct {
	mu       sync.Mutex
	pending  []SidecarWrite
	capacity int
	notify   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSidecarSync builds a SidecarSync with the given buffer capacity.
func NewSidecarSync(capacity int) *SidecarSync {
	if capacity <= 0 {
		capacity = 1
	}
	return &SidecarSync{capacity: capacity, notify: make(chan struct{}, 1)}
}

// Enqueue submits a sidecar write-back. It never blocks: if the buffer
// is already at capacity the oldest pending write is dropped with a
// warning and the new one takes its place.
func (s *SidecarSync) Enqueue(w SidecarWrite) {
	s.mu.Lock()
	if len(s.pending) >= s.capacity {
		dropped := s.pending[0]
		s.pending = s.pending[1:]
		logger.Warn("sidecar sync queue full, dropping oldest pending write", "filepath", dropped.Filepath)
	}
	s.pending = append(s.pending, w)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Start launches the background writer goroutine.
func (s *SidecarSync) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop signals the writer to flush remaining pending writes and blocks
// until it exits.
func (s *SidecarSync) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SidecarSync) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case <-s.notify:
			s.drain()
		}
	}
}

func (s *SidecarSync) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		w := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if err := writeSidecar(w); err != nil {
			logger.Warn("sidecar write failed", "filepath", w.Filepath, "error", err)
		}
	}
}

func writeSidecar(w SidecarWrite) error {
	data, err := json.Marshal(sidecarPayload{Rating: w.Rating, Tags: w.Tags})
	if err != nil {
		return err
	}
	return os.WriteFile(w.Filepath+sidecarSuffix, data, 0o644)
}
