// Package enrich implements metadata extraction (component D): a
// pluggable Extractor backend, a read-through cache keyed by the file's
// state hash, and a bounded queue for extraction work handed off by the
// indexer instead of run inline.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
)

// Backend is a pluggable metadata extraction implementation. ExtractRaw
// returns an ExifTool/ffprobe-like payload plus the fields the rest of
// the system needs structured access to; it never touches the database.
type Backend interface {
	Name() string
	ExtractRaw(ctx context.Context, filepath string, kind assetdb.Kind) (Raw, error)
}

// Raw is a backend's structured contribution, before it is folded into
// an assetdb.EnrichmentResult.
type Raw struct {
	Width             int
	Height            int
	Duration          float64
	HasWidth          bool
	HasHeight         bool
	HasDuration       bool
	WorkflowPayload   []byte // raw ComfyUI-style workflow JSON, if embedded
	GenerationPayload []byte // raw prompt/generation-parameters payload, if embedded
	Payload           map[string]any
	Quality           string // "full", "partial", or "degraded"
}

// Service wraps a Backend with a read-through MetadataCache. It
// satisfies pkg/indexer's Extractor interface structurally, so indexer
// never needs to import this package.
type Service struct {
	backend Backend
	cache   *assetdb.MetadataCache
}

// NewService builds an enrichment Service. cache may be nil, in which
// case every call falls through to the backend.
func NewService(backend Backend, cache *assetdb.MetadataCache) *Service {
	return &Service{backend: backend, cache: cache}
}

// Extract produces an EnrichmentResult for filepath, consulting the
// cache first and persisting a fresh result back to it on miss.
func (s *Service) Extract(ctx context.Context, filepath string, kind assetdb.Kind) (assetdb.EnrichmentResult, error) {
	info, err := os.Stat(filepath)
	if err != nil {
		return assetdb.EnrichmentResult{}, err
	}
	stateHash := assetdb.ComputeStateHash(filepath, info.ModTime().UnixNano(), info.Size())

	if s.cache != nil {
		if cached, ok := s.cache.Get(filepath, s.backend.Name(), stateHash); ok {
			var raw Raw
			if err := json.Unmarshal(cached.Payload, &raw); err == nil {
				return toEnrichmentResult(raw), nil
			}
		}
	}

	raw, err := s.backend.ExtractRaw(ctx, filepath, kind)
	if err != nil {
		logger.WarnCtx(ctx, "extractor failed, recording degraded metadata", "filepath", filepath, "error", err)
		return assetdb.EnrichmentResult{Quality: "degraded"}, nil
	}

	if s.cache != nil {
		payload, err := json.Marshal(raw)
		if err == nil {
			if err := s.cache.Put(filepath, assetdb.CachedExtraction{
				StateHash: stateHash,
				Extractor: s.backend.Name(),
				Payload:   payload,
			}); err != nil {
				logger.WarnCtx(ctx, "failed to cache extraction", "filepath", filepath, "error", err)
			}
		}
	}

	return toEnrichmentResult(raw), nil
}

func toEnrichmentResult(raw Raw) assetdb.EnrichmentResult {
	result := assetdb.EnrichmentResult{Quality: raw.Quality}
	if result.Quality == "" {
		result.Quality = "degraded"
	}
	if raw.HasWidth {
		result.Width.Int64, result.Width.Valid = int64(raw.Width), true
	}
	if raw.HasHeight {
		result.Height.Int64, result.Height.Valid = int64(raw.Height), true
	}
	if raw.HasDuration {
		result.Duration.Float64, result.Duration.Valid = raw.Duration, true
	}
	if len(raw.WorkflowPayload) > 0 {
		result.HasWorkflow = true
		result.WorkflowHash = hashPayload(raw.WorkflowPayload)
		result.RawPayload = raw.WorkflowPayload
	}
	if len(raw.GenerationPayload) > 0 {
		result.HasGenerationData = true
		if len(result.RawPayload) == 0 {
			result.RawPayload = raw.GenerationPayload
		}
	}
	if len(result.RawPayload) == 0 && raw.Payload != nil {
		if b, err := json.Marshal(raw.Payload); err == nil {
			result.RawPayload = b
		}
	}
	return result
}

func hashPayload(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
