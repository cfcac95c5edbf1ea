package assetdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// GetMetadata fetches an asset's metadata row, returning a zero-value
// Metadata (not an error) when the asset has never been enriched.
func GetMetadata(ctx context.Context, s *store.Store, assetID int64) (*Metadata, *apperr.Error) {
	row := s.QueryRow(ctx, `
		SELECT asset_id, rating, tags_json, tags_text, workflow_hash, has_workflow,
			has_generation_data, metadata_quality, raw_payload, updated_at
		FROM asset_metadata WHERE asset_id = ?`, assetID)

	var m Metadata
	var tagsJSON string
	err := row.Scan(&m.AssetID, &m.Rating, &tagsJSON, &m.TagsText, &m.WorkflowHash,
		&m.HasWorkflow, &m.HasGenerationData, &m.Quality, &m.RawPayload, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return &Metadata{AssetID: assetID, Tags: []string{}, Quality: "none"}, nil
	}
	if err != nil {
		return nil, apperr.DB(err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		m.Tags = nil
	}
	return &m, nil
}

// EnrichmentResult is what an extractor contributes to asset_metadata.
type EnrichmentResult struct {
	WorkflowHash      string
	HasWorkflow       bool
	HasGenerationData bool
	Quality           string
	RawPayload        []byte
	Width             sql.NullInt64
	Height            sql.NullInt64
	Duration          sql.NullFloat64
}

// ApplyEnrichment merges extractor output into asset_metadata and the
// asset's dimension columns without touching user-authoritative rating
// or tags.
func ApplyEnrichment(ctx context.Context, s *store.Store, assetID int64, r EnrichmentResult) *apperr.Error {
	now := time.Now().Unix()
	err := s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		var workflowHash any
		if r.WorkflowHash != "" {
			workflowHash = r.WorkflowHash
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO asset_metadata (asset_id, workflow_hash, has_workflow, has_generation_data, metadata_quality, raw_payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (asset_id) DO UPDATE SET
				workflow_hash = excluded.workflow_hash,
				has_workflow = excluded.has_workflow,
				has_generation_data = excluded.has_generation_data,
				metadata_quality = excluded.metadata_quality,
				raw_payload = excluded.raw_payload,
				updated_at = excluded.updated_at`,
			assetID, workflowHash, r.HasWorkflow, r.HasGenerationData, r.Quality, r.RawPayload, now,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE assets SET width = ?, height = ?, duration = ?, updated_at = ?
			WHERE id = ?`, r.Width, r.Height, r.Duration, now, assetID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return apperr.DB(err)
	}
	return nil
}

// ApplyContentHash records a computed (or failed) content/perceptual hash.
func ApplyContentHash(ctx context.Context, s *store.Store, assetID int64, contentHash, perceptualHash string, state HashState) *apperr.Error {
	now := time.Now().Unix()
	var ch, ph any
	if contentHash != "" {
		ch = contentHash
	}
	if perceptualHash != "" {
		ph = perceptualHash
	}
	_, err := s.Execute(ctx, `
		UPDATE assets SET content_hash = ?, perceptual_hash = ?, hash_state = ?, updated_at = ?
		WHERE id = ?`, ch, ph, string(state), now, assetID)
	if err != nil {
		return apperr.DB(err)
	}
	return nil
}
