package assetdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// Collection is a user-curated, ordered set of asset filepaths.
type Collection struct {
	ID        int64
	Name      string
	CreatedAt int64
	UpdatedAt int64
	Items     []string
}

// CreateCollection creates an empty named collection.
func CreateCollection(ctx context.Context, s *store.Store, name string) (*Collection, *apperr.Error) {
	if name == "" {
		return nil, apperr.Invalid("collection name must not be empty")
	}
	now := time.Now().Unix()
	var id int64
	err := s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		res, err := tx.Exec(ctx, `INSERT INTO collections (name, created_at, updated_at) VALUES (?, ?, ?)`, name, now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflictf("collection %q already exists", name)
		}
		return nil, apperr.DB(err)
	}
	return &Collection{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetCollection loads a collection and its ordered item filepaths.
func GetCollection(ctx context.Context, s *store.Store, id int64) (*Collection, *apperr.Error) {
	row := s.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM collections WHERE id = ?`, id)
	var c Collection
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("collection %d not found", id)
	} else if err != nil {
		return nil, apperr.DB(err)
	}

	rows, err := s.Query(ctx, `SELECT filepath FROM collection_items WHERE collection_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, apperr.DB(err)
		}
		c.Items = append(c.Items, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DB(err)
	}
	return &c, nil
}

// ListCollections returns every collection without hydrating items.
func ListCollections(ctx context.Context, s *store.Store) ([]*Collection, *apperr.Error) {
	rows, err := s.Query(ctx, `SELECT id, name, created_at, updated_at FROM collections ORDER BY name`)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()
	var out []*Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, apperr.DB(err)
		}
		out = append(out, &c)
	}
	return out, apperr.DB(rows.Err())
}

// SetCollectionItems replaces a collection's ordered items atomically.
func SetCollectionItems(ctx context.Context, s *store.Store, id int64, filepaths []string) *apperr.Error {
	now := time.Now().Unix()
	err := s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM collection_items WHERE collection_id = ?`, id); err != nil {
			return err
		}
		for pos, fp := range filepaths {
			if _, err := tx.Exec(ctx, `INSERT INTO collection_items (collection_id, filepath, position) VALUES (?, ?, ?)`, id, fp, pos); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE collections SET updated_at = ? WHERE id = ?`, now, id)
		return err
	})
	if err != nil {
		return apperr.DB(err)
	}
	return nil
}

// DeleteCollection removes a collection and its items (cascading).
func DeleteCollection(ctx context.Context, s *store.Store, id int64) *apperr.Error {
	affected, err := s.Execute(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return apperr.DB(err)
	}
	if affected == 0 {
		return apperr.NotFoundf("collection %d not found", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}
