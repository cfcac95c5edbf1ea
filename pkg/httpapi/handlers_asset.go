package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/enrich"
	"github.com/majoor/assetindex/pkg/paths"
)

// decodeJSON unmarshals the request body into v, translating any
// failure into the INVALID_JSON error code rather than leaking the
// decoder's own message.
func decodeJSON(r *http.Request, v any) *apperr.Error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidJSONBody(err)
	}
	return nil
}

// AssetView is the JSON shape returned by the single-asset endpoints,
// combining the assets row with its (possibly empty) metadata row.
type AssetView struct {
	ID          int64    `json:"id"`
	Filepath    string   `json:"filepath"`
	Filename    string   `json:"filename"`
	Subfolder   string   `json:"subfolder"`
	Source      string   `json:"source"`
	RootID      string   `json:"root_id,omitempty"`
	Kind        string   `json:"kind"`
	Extension   string   `json:"extension"`
	SizeBytes   int64    `json:"size_bytes"`
	Mtime       int64    `json:"mtime"`
	Width       int64    `json:"width,omitempty"`
	Height      int64    `json:"height,omitempty"`
	Rating      int      `json:"rating"`
	Tags        []string `json:"tags"`
	HasWorkflow bool      `json:"has_workflow"`
}

func newAssetView(a *assetdb.Asset, m *assetdb.Metadata) AssetView {
	v := AssetView{
		ID:        a.ID,
		Filepath:  a.Filepath,
		Filename:  a.Filename,
		Subfolder: a.Subfolder,
		Source:    string(a.Source),
		Kind:      string(a.Kind),
		Extension: a.Extension,
		SizeBytes: a.SizeBytes,
		Mtime:     a.Mtime,
		Tags:      []string{},
	}
	if a.RootID.Valid {
		v.RootID = a.RootID.String
	}
	if a.Width.Valid {
		v.Width = a.Width.Int64
	}
	if a.Height.Valid {
		v.Height = a.Height.Int64
	}
	if m != nil {
		v.Rating = m.Rating
		v.HasWorkflow = m.HasWorkflow
		if m.Tags != nil {
			v.Tags = m.Tags
		}
	}
	return v
}

func (a *App) viewForAsset(ctx context.Context, asset *assetdb.Asset) (AssetView, *apperr.Error) {
	meta, aerr := assetdb.GetMetadata(ctx, a.Store, asset.ID)
	if aerr != nil {
		return AssetView{}, aerr
	}
	return newAssetView(asset, meta), nil
}

// resolveAssetByNameParams locates (and, via the indexer's resolve-or-
// create path, indexes on demand) the asset named by the /workflow-quick
// and /metadata query vocabulary: type, filename, subfolder, root_id.
func (s *Server) resolveAssetByNameParams(r *http.Request, sourceType, filename, subfolder, rootID string) (*assetdb.Asset, *apperr.Error) {
	if filename == "" {
		return nil, apperr.Invalid("filename is required")
	}
	rel := filepath.Join(subfolder, filename)

	var resolved *paths.Resolved
	var aerr *apperr.Error
	switch assetdb.Source(sourceType) {
	case "", assetdb.SourceOutput:
		resolved, aerr = s.app.Registry.Resolve(paths.KindOutput, rel)
	case assetdb.SourceInput:
		resolved, aerr = s.app.Registry.Resolve(paths.KindInput, rel)
	case assetdb.SourceCustom:
		resolved, aerr = s.app.Registry.ResolveCustom(rootID, rel)
	default:
		return nil, apperr.Invalid("unknown type %q", sourceType)
	}
	if aerr != nil {
		return nil, aerr
	}
	if s.app.Indexer == nil {
		return nil, apperr.Unavailable("indexer is not available")
	}
	return s.app.Indexer.ResolveOrCreate(r.Context(), s.app.Registry, resolved.Abs)
}

// metadataFor is a thin wrapper kept alongside resolveAssetByNameParams
// so the workflow-quick/metadata handlers read as a single resolve-then-
// fetch pipeline.
func (a *App) metadataFor(r *http.Request, assetID int64) (*assetdb.Metadata, *apperr.Error) {
	return assetdb.GetMetadata(r.Context(), a.Store, assetID)
}

// rawPayloadJSON decodes an asset_metadata.raw_payload blob into a
// generic JSON value for re-serialization, or nil if it's empty or not
// valid JSON (an extractor failure should never surface as a 500).
func rawPayloadJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// assetRef is the {asset_id|filepath} union every write endpoint
// accepts; filepath addresses a file by its path on disk and is
// resolved (indexing it on demand) via the indexer.
type assetRef struct {
	AssetID  int64  `json:"asset_id"`
	Filepath string `json:"filepath"`
}

func (a *App) resolveRef(ctx context.Context, ref assetRef) (*assetdb.Asset, *apperr.Error) {
	if ref.AssetID > 0 {
		return assetdb.GetByID(ctx, a.Store, ref.AssetID)
	}
	if ref.Filepath == "" {
		return nil, apperr.Invalid("asset_id or filepath is required")
	}
	abs, err := filepath.Abs(ref.Filepath)
	if err != nil {
		return nil, apperr.Invalid("invalid filepath")
	}
	if a.Indexer == nil {
		return nil, apperr.Unavailable("indexer is not available")
	}
	return a.Indexer.ResolveOrCreate(ctx, a.Registry, abs)
}

// handleGetAsset returns a single asset by id, hydrated with its
// metadata.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("invalid asset id"))
		return
	}
	asset, aerr := assetdb.GetByID(r.Context(), s.app.Store, id)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	view, aerr := s.app.viewForAsset(r.Context(), asset)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, view)
}

type batchRequest struct {
	AssetIDs []int64 `json:"asset_ids"`
}

// handleAssetsBatch hydrates multiple assets by id in one call, for the
// UI's bulk-select panels.
func (s *Server) handleAssetsBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	assets, aerr := assetdb.GetManyByID(r.Context(), s.app.Store, req.AssetIDs)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	views := make([]AssetView, 0, len(assets))
	for _, a := range assets {
		view, aerr := s.app.viewForAsset(r.Context(), a)
		if aerr != nil {
			fail(w, s.app.Cfg.Server.DebugErrors, aerr)
			return
		}
		views = append(views, view)
	}
	ok(w, views)
}

type ratingRequest struct {
	assetRef
	Rating int `json:"rating"`
}

// handleAssetRating updates an asset's rating, rejecting values outside
// the [0,5] range the UI's star widget expects with INVALID_INPUT.
func (s *Server) handleAssetRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("rating must be between 0 and 5"))
		return
	}
	asset, aerr := s.app.resolveRef(r.Context(), req.assetRef)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if aerr := assetdb.UpdateRating(r.Context(), s.app.Store, asset.ID, req.Rating); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	view, aerr := s.app.viewForAsset(r.Context(), asset)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	s.maybeSyncSidecar(r, asset.Filepath, view.Rating, view.Tags)
	ok(w, view)
}

// maybeSyncSidecar mirrors a rating/tags edit back to the asset's
// sidecar file when the client opted in via the X-MJR-Sidecar-Sync
// header, best-effort behind the sidecar worker's bounded buffer.
func (s *Server) maybeSyncSidecar(r *http.Request, filepathValue string, rating int, tags []string) {
	if s.app.Sidecar == nil {
		return
	}
	if v := r.Header.Get("X-MJR-Sidecar-Sync"); v != "1" && !strings.EqualFold(v, "true") {
		return
	}
	s.app.Sidecar.Enqueue(enrich.SidecarWrite{Filepath: filepathValue, Rating: rating, Tags: tags})
}

type tagsRequest struct {
	assetRef
	Tags []string `json:"tags"`
}

// handleAssetTags replaces an asset's tag set.
func (s *Server) handleAssetTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	tags, aerr := assetdb.NormalizeTags(req.Tags)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	asset, aerr := s.app.resolveRef(r.Context(), req.assetRef)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if aerr := assetdb.UpdateTags(r.Context(), s.app.Store, asset.ID, tags); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	view, aerr := s.app.viewForAsset(r.Context(), asset)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	s.maybeSyncSidecar(r, asset.Filepath, view.Rating, view.Tags)
	ok(w, view)
}

// handleAssetDelete removes an asset's row and, best-effort, unlinks the
// underlying file; a missing file is not itself a failure (the row was
// already orphaned on disk).
func (s *Server) handleAssetDelete(w http.ResponseWriter, r *http.Request) {
	var req assetRef
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	asset, aerr := s.app.resolveRef(r.Context(), req)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if err := os.Remove(asset.Filepath); err != nil && !os.IsNotExist(err) {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Wrap(apperr.DeleteFailed, "failed to delete file", err))
		return
	}
	if aerr := assetdb.DeleteAsset(r.Context(), s.app.Store, asset.ID); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, map[string]any{"deleted": 1})
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

type bulkDeleteOutcome struct {
	DeletedIDs []int64           `json:"deleted_ids"`
	FailedIDs  []int64           `json:"failed_ids"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// handleAssetsDelete deletes several assets by id, aggregating
// per-id failures instead of aborting the whole batch on the first
// error. A partially failed batch still reports ok with meta.partial
// set so the UI can refresh the survivors.
func (s *Server) handleAssetsDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	out := bulkDeleteOutcome{DeletedIDs: []int64{}, FailedIDs: []int64{}, Errors: map[string]string{}}
	for _, id := range req.IDs {
		asset, aerr := assetdb.GetByID(r.Context(), s.app.Store, id)
		if aerr != nil {
			out.FailedIDs = append(out.FailedIDs, id)
			out.Errors[strconv.FormatInt(id, 10)] = aerr.Message
			continue
		}
		if err := os.Remove(asset.Filepath); err != nil && !os.IsNotExist(err) {
			out.FailedIDs = append(out.FailedIDs, id)
			out.Errors[strconv.FormatInt(id, 10)] = "failed to delete file"
			continue
		}
		if aerr := assetdb.DeleteAsset(r.Context(), s.app.Store, id); aerr != nil {
			out.FailedIDs = append(out.FailedIDs, id)
			out.Errors[strconv.FormatInt(id, 10)] = aerr.Message
			continue
		}
		out.DeletedIDs = append(out.DeletedIDs, id)
	}
	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	okMeta(w, out, map[string]any{"partial": len(out.FailedIDs) > 0 && len(out.DeletedIDs) > 0})
}

type renameRequest struct {
	assetRef
	NewName string `json:"new_name"`
}

// handleAssetRename renames an asset's file on disk and updates its
// filepath/filename in the index. A destination that already exists is
// a CONFLICT, except for a case-only rename on a case-insensitive
// filesystem, which is the same file and is allowed through.
func (s *Server) handleAssetRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if newName, ok2 := paths.SafeRelPath(req.NewName); !ok2 || newName == "" {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("invalid new_name"))
		return
	}
	asset, aerr := s.app.resolveRef(r.Context(), req.assetRef)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}

	dir := filepath.Dir(asset.Filepath)
	dest := filepath.Join(dir, req.NewName)
	sameCanonical := assetdb.CanonicalFilepathKey(dest) == assetdb.CanonicalFilepathKey(asset.Filepath)
	if !sameCanonical {
		if _, err := os.Stat(dest); err == nil {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Conflictf("a file named %q already exists", req.NewName))
			return
		} else if !os.IsNotExist(err) {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Wrap(apperr.RenameFailed, "failed to stat rename destination", err))
			return
		}
	}
	if err := os.Rename(asset.Filepath, dest); err != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Wrap(apperr.RenameFailed, "failed to rename file", err))
		return
	}

	if s.app.Indexer == nil {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Unavailable("indexer is not available"))
		return
	}
	renamed, aerr := s.app.Indexer.ResolveOrCreate(r.Context(), s.app.Registry, dest)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if renamed.ID != asset.ID {
		_ = assetdb.DeleteAsset(r.Context(), s.app.Store, asset.ID)
	}
	view, aerr := s.app.viewForAsset(r.Context(), renamed)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, view)
}

// handleOpenInFolder is interface-only: revealing a path in the host's
// file manager is an out-of-scope client concern (spec §1, Non-goals),
// so this always reports the fallback outcome rather than shelling out.
func (s *Server) handleOpenInFolder(w http.ResponseWriter, r *http.Request) {
	var req assetRef
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	asset, aerr := s.app.resolveRef(r.Context(), req)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, map[string]any{"opened": false, "selected": asset.Filepath, "fallback": "open_in_folder is not implemented by this server; the client should reveal the path locally"})
}
