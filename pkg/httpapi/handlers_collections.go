package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
)

// CollectionView is the JSON shape for a single collection, its items
// hydrated with the asset id each filepath currently resolves to (0 if
// the file is not, or no longer, indexed).
type CollectionView struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	CreatedAt int64                `json:"created_at"`
	UpdatedAt int64                `json:"updated_at"`
	Items     []CollectionItemView `json:"items"`
}

type CollectionItemView struct {
	Filepath string `json:"filepath"`
	AssetID  int64  `json:"asset_id,omitempty"`
}

func hydrateCollection(a *App, r *http.Request, c *assetdb.Collection) CollectionView {
	view := CollectionView{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, Items: make([]CollectionItemView, 0, len(c.Items))}
	for _, fp := range c.Items {
		item := CollectionItemView{Filepath: fp}
		if asset, aerr := assetdb.GetByFilepath(r.Context(), a.Store, assetdb.CanonicalFilepathKey(fp)); aerr == nil {
			item.AssetID = asset.ID
		}
		view.Items = append(view.Items, item)
	}
	return view
}

// handleListCollections lists every collection without hydrating items,
// for the sidebar's collection picker.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, aerr := assetdb.ListCollections(r.Context(), s.app.Store)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	out := make([]CollectionView, 0, len(cols))
	for _, c := range cols {
		out = append(out, CollectionView{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, Items: []CollectionItemView{}})
	}
	ok(w, out)
}

func (s *Server) parseCollectionID(r *http.Request) (int64, *apperr.Error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperr.Invalid("invalid collection id")
	}
	return id, nil
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id, aerr := s.parseCollectionID(r)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	c, aerr := assetdb.GetCollection(r.Context(), s.app.Store, id)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, hydrateCollection(s.app, r, c))
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	c, aerr := assetdb.CreateCollection(r.Context(), s.app.Store, req.Name)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, hydrateCollection(s.app, r, c))
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, aerr := s.parseCollectionID(r)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if aerr := assetdb.DeleteCollection(r.Context(), s.app.Store, id); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, map[string]any{"deleted": true})
}

type setCollectionItemsRequest struct {
	Filepaths []string `json:"filepaths"`
}

// handleSetCollectionItems replaces a collection's ordered items
// wholesale; the UI always sends the full desired order rather than
// incremental add/remove operations.
func (s *Server) handleSetCollectionItems(w http.ResponseWriter, r *http.Request) {
	id, aerr := s.parseCollectionID(r)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	var req setCollectionItemsRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if aerr := assetdb.SetCollectionItems(r.Context(), s.app.Store, id, req.Filepaths); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	c, aerr := assetdb.GetCollection(r.Context(), s.app.Store, id)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, hydrateCollection(s.app, r, c))
}
