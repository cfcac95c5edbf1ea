// Package assetdb is the repository layer shared by the indexer,
// enrichment, search and maintenance components. It is the only package
// besides pkg/store itself that issues SQL, and it never bypasses
// pkg/store's query/execute/transaction surface.
package assetdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// Source is the closed set of asset origins.
type Source string

const (
	SourceOutput Source = "output"
	SourceInput  Source = "input"
	SourceCustom Source = "custom"
)

// Kind is the closed set of indexed media kinds.
type Kind string

const (
	KindImage  Kind = "image"
	KindVideo  Kind = "video"
	KindAudio  Kind = "audio"
	KindModel3D Kind = "model3d"
)

// HashState tracks whether content/perceptual hashing has run for a row.
type HashState string

const (
	HashNone     HashState = "none"
	HashComputed HashState = "computed"
	HashFailed   HashState = "failed"
)

// Asset mirrors the assets table.
type Asset struct {
	ID             int64
	Filepath       string
	FilepathKey    string
	Filename       string
	Subfolder      string
	Source         Source
	RootID         sql.NullString
	Kind           Kind
	Extension      string
	SizeBytes      int64
	Mtime          int64
	Width          sql.NullInt64
	Height         sql.NullInt64
	Duration       sql.NullFloat64
	ContentHash    sql.NullString
	PerceptualHash sql.NullString
	HashState      HashState
	CreatedAt      int64
	UpdatedAt      int64
	IndexedAt      int64
}

// Metadata mirrors the asset_metadata table.
type Metadata struct {
	AssetID           int64
	Rating            int
	Tags              []string
	TagsText          string
	WorkflowHash      sql.NullString
	HasWorkflow       bool
	HasGenerationData bool
	Quality           string
	RawPayload        []byte
	UpdatedAt         int64
}

const assetColumns = `id, filepath, filepath_key, filename, subfolder, source, root_id, kind,
	extension, size_bytes, mtime, width, height, duration, content_hash,
	perceptual_hash, hash_state, created_at, updated_at, indexed_at`

func scanAsset(row interface {
	Scan(dest ...any) error
}) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Filepath, &a.FilepathKey, &a.Filename, &a.Subfolder, &a.Source,
		&a.RootID, &a.Kind, &a.Extension, &a.SizeBytes, &a.Mtime, &a.Width, &a.Height,
		&a.Duration, &a.ContentHash, &a.PerceptualHash, &a.HashState, &a.CreatedAt,
		&a.UpdatedAt, &a.IndexedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID fetches a single asset by its stable id.
func GetByID(ctx context.Context, s *store.Store, id int64) (*Asset, *apperr.Error) {
	row := s.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("asset %d not found", id)
	}
	if err != nil {
		return nil, apperr.DB(err)
	}
	return a, nil
}

// GetByFilepath fetches a single asset by its canonical filepath.
func GetByFilepath(ctx context.Context, s *store.Store, filepathKey string) (*Asset, *apperr.Error) {
	row := s.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE filepath_key = ?`, filepathKey)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("asset not found for path")
	}
	if err != nil {
		return nil, apperr.DB(err)
	}
	return a, nil
}

// GetManyByID hydrates multiple assets in id-chunked IN-clause batches
// via the store's bounded expansion.
func GetManyByID(ctx context.Context, s *store.Store, ids []int64) ([]*Asset, *apperr.Error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = strconv.FormatInt(id, 10)
	}
	var out []*Asset
	err := s.QueryIn(ctx, `SELECT `+assetColumns+` FROM assets WHERE id IN (%s)`, strIDs, func(rows *sql.Rows) error {
		for rows.Next() {
			a, err := scanAsset(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperr.DB(err)
	}
	return out, nil
}

// ExistingJournalState is the subset of ScanJournal+Asset state the
// Indexer needs per batch: existing id, mtime, and the last recorded
// state_hash, keyed by filepath.
type ExistingJournalState struct {
	AssetID     int64
	Mtime       int64
	StateHash   string
	HasRichMeta bool
}

// LoadExistingStates loads (id, mtime, state_hash, has_rich_meta) for
// every filepath in paths that is already indexed, in chunked IN-clause
// batches. has_rich_meta reports whether the asset already carries
// enrichment output beyond the default "none" quality, used by the
// indexer's should_skip_by_journal decision.
func LoadExistingStates(ctx context.Context, s *store.Store, paths []string) (map[string]ExistingJournalState, *apperr.Error) {
	out := make(map[string]ExistingJournalState, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	err := s.QueryIn(ctx, `
		SELECT a.filepath_key, a.id, a.mtime, COALESCE(j.state_hash, ''),
			COALESCE(m.metadata_quality, 'none') != 'none'
		FROM assets a
		LEFT JOIN scan_journal j ON j.filepath = a.filepath
		LEFT JOIN asset_metadata m ON m.asset_id = a.id
		WHERE a.filepath_key IN (%s)`, paths, func(rows *sql.Rows) error {
		for rows.Next() {
			var key string
			var st ExistingJournalState
			if err := rows.Scan(&key, &st.AssetID, &st.Mtime, &st.StateHash, &st.HasRichMeta); err != nil {
				return err
			}
			out[key] = st
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperr.DB(err)
	}
	return out, nil
}

// UpsertAssetRow is the prepared shape for a single scan-batch upsert.
type UpsertAssetRow struct {
	Filepath  string
	Filename  string
	Subfolder string
	Source    Source
	RootID    string
	Kind      Kind
	Extension string
	SizeBytes int64
	Mtime     int64
	Now       int64
}

// UpsertAssetsTx upserts a batch of assets and their scan_journal rows
// inside an already-open transaction. Callers wrap this in
// store.Transaction(ctx, store.TxImmediate, ...).
func UpsertAssetsTx(ctx context.Context, tx *store.Tx, dirPath string, rows []UpsertAssetRow) error {
	for _, r := range rows {
		key := CanonicalFilepathKey(r.Filepath)
		var rootID any
		if r.RootID != "" {
			rootID = r.RootID
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO assets (
				filepath, filepath_key, filename, subfolder, source, root_id, kind,
				extension, size_bytes, mtime, created_at, updated_at, indexed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (filepath) DO UPDATE SET
				filename = excluded.filename,
				subfolder = excluded.subfolder,
				size_bytes = excluded.size_bytes,
				mtime = excluded.mtime,
				updated_at = excluded.updated_at,
				indexed_at = excluded.indexed_at`,
			r.Filepath, key, r.Filename, r.Subfolder, string(r.Source), rootID, string(r.Kind),
			r.Extension, r.SizeBytes, r.Mtime, r.Now, r.Now, r.Now,
		)
		if err != nil {
			return err
		}

		stateHash := ComputeStateHash(r.Filepath, r.Mtime, r.SizeBytes)
		_, err = tx.Exec(ctx, `
			INSERT INTO scan_journal (filepath, dir_path, state_hash, mtime, size_bytes, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (filepath) DO UPDATE SET
				state_hash = excluded.state_hash,
				mtime = excluded.mtime,
				size_bytes = excluded.size_bytes,
				last_seen = excluded.last_seen`,
			r.Filepath, dirPath, stateHash, r.Mtime, r.SizeBytes, r.Now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// CanonicalFilepathKey normalizes a filepath for case-insensitive
// duplicate detection, matching the case-folding policy of component C.
func CanonicalFilepathKey(p string) string {
	return strings.ToLower(p)
}

// UpdateRating writes a user-authoritative rating, guarded by the asset's
// existence via the foreign key.
func UpdateRating(ctx context.Context, s *store.Store, assetID int64, rating int) *apperr.Error {
	if rating < 0 || rating > 5 {
		return apperr.Invalid("rating must be between 0 and 5")
	}
	now := time.Now().Unix()
	err := s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO asset_metadata (asset_id, rating, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (asset_id) DO UPDATE SET rating = excluded.rating, updated_at = excluded.updated_at`,
			assetID, rating, now)
		return err
	})
	if err != nil {
		return apperr.DB(err)
	}
	return nil
}

// UpdateTags dedupes tags case-insensitively (preserving first-seen
// case), enforces the 50-tag/100-char bounds, and writes tags_text for
// FTS.
func UpdateTags(ctx context.Context, s *store.Store, assetID int64, tags []string) *apperr.Error {
	deduped, aerr := NormalizeTags(tags)
	if aerr != nil {
		return aerr
	}
	tagsJSON, err := json.Marshal(deduped)
	if err != nil {
		return apperr.Invalid("invalid tags payload")
	}
	tagsText := strings.Join(deduped, " ")
	now := time.Now().Unix()

	err = s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO asset_metadata (asset_id, tags_json, tags_text, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (asset_id) DO UPDATE SET tags_json = excluded.tags_json, tags_text = excluded.tags_text, updated_at = excluded.updated_at`,
			assetID, string(tagsJSON), tagsText, now)
		return err
	})
	if err != nil {
		return apperr.DB(err)
	}
	return nil
}

// NormalizeTags applies the tag invariants: dedup case-insensitively
// (first occurrence's case wins), at most 50 tags, each at most 100
// chars.
func NormalizeTags(tags []string) ([]string, *apperr.Error) {
	if len(tags) > 50 {
		return nil, apperr.Invalid("at most 50 tags are allowed")
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > 100 {
			return nil, apperr.Invalid("tag %q exceeds 100 characters", t)
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// DeleteAsset removes an asset row (cascading to asset_metadata and
// scan_journal via foreign keys).
func DeleteAsset(ctx context.Context, s *store.Store, assetID int64) *apperr.Error {
	affected, err := s.Execute(ctx, `DELETE FROM assets WHERE id = ?`, assetID)
	if err != nil {
		return apperr.DB(err)
	}
	if affected == 0 {
		return apperr.NotFoundf("asset %d not found", assetID)
	}
	return nil
}
