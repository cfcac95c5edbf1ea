package assetdb

import (
	"context"
	"encoding/hex"
	"math/bits"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// DuplicateMember is one asset inside a duplicate group, carrying just
// enough for the UI to show the group and let the user pick survivors.
type DuplicateMember struct {
	AssetID   int64  `json:"asset_id"`
	Filepath  string `json:"filepath"`
	SizeBytes int64  `json:"size_bytes"`
	Mtime     int64  `json:"mtime"`
}

// DuplicateGroup is an equivalence class of assets: exact groups share
// a content_hash, perceptual groups fall within the configured Hamming
// distance of each other.
type DuplicateGroup struct {
	Key     string            `json:"key"`
	Kind    string            `json:"kind"` // "content" or "perceptual"
	Members []DuplicateMember `json:"members"`
}

type hashedAsset struct {
	member DuplicateMember
	hash   []byte
}

// ListDuplicateGroups builds content-hash duplicate groups and, when
// hammingBound > 0, secondarily clusters perceptually-hashed assets
// whose hashes are within hammingBound bits of each other. Assets
// already claimed by an exact group are not re-reported perceptually.
func ListDuplicateGroups(ctx context.Context, s *store.Store, hammingBound int) ([]DuplicateGroup, *apperr.Error) {
	groups, inExact, aerr := contentHashGroups(ctx, s)
	if aerr != nil {
		return nil, aerr
	}
	if hammingBound > 0 {
		perceptual, aerr := perceptualGroups(ctx, s, hammingBound, inExact)
		if aerr != nil {
			return nil, aerr
		}
		groups = append(groups, perceptual...)
	}
	return groups, nil
}

func contentHashGroups(ctx context.Context, s *store.Store) ([]DuplicateGroup, map[int64]struct{}, *apperr.Error) {
	rows, err := s.Query(ctx, `
		SELECT a.content_hash, a.id, a.filepath, a.size_bytes, a.mtime
		FROM assets a
		WHERE a.hash_state = 'computed' AND a.content_hash IS NOT NULL AND a.content_hash != ''
		  AND a.content_hash IN (
			SELECT content_hash FROM assets
			WHERE hash_state = 'computed' AND content_hash IS NOT NULL AND content_hash != ''
			GROUP BY content_hash HAVING COUNT(*) > 1
		  )
		ORDER BY a.content_hash, a.mtime DESC, a.filepath DESC`)
	if err != nil {
		return nil, nil, apperr.DB(err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	claimed := make(map[int64]struct{})
	for rows.Next() {
		var hash string
		var m DuplicateMember
		if err := rows.Scan(&hash, &m.AssetID, &m.Filepath, &m.SizeBytes, &m.Mtime); err != nil {
			return nil, nil, apperr.DB(err)
		}
		claimed[m.AssetID] = struct{}{}
		if n := len(groups); n > 0 && groups[n-1].Key == hash {
			groups[n-1].Members = append(groups[n-1].Members, m)
			continue
		}
		groups = append(groups, DuplicateGroup{Key: hash, Kind: "content", Members: []DuplicateMember{m}})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperr.DB(err)
	}
	return groups, claimed, nil
}

func perceptualGroups(ctx context.Context, s *store.Store, bound int, skip map[int64]struct{}) ([]DuplicateGroup, *apperr.Error) {
	rows, err := s.Query(ctx, `
		SELECT a.perceptual_hash, a.id, a.filepath, a.size_bytes, a.mtime
		FROM assets a
		WHERE a.hash_state = 'computed' AND a.perceptual_hash IS NOT NULL AND a.perceptual_hash != ''
		ORDER BY a.mtime DESC, a.filepath DESC`)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	var candidates []hashedAsset
	for rows.Next() {
		var rawHash string
		var m DuplicateMember
		if err := rows.Scan(&rawHash, &m.AssetID, &m.Filepath, &m.SizeBytes, &m.Mtime); err != nil {
			return nil, apperr.DB(err)
		}
		if _, ok := skip[m.AssetID]; ok {
			continue
		}
		decoded, decodeErr := hex.DecodeString(rawHash)
		if decodeErr != nil {
			continue
		}
		candidates = append(candidates, hashedAsset{member: m, hash: decoded})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DB(err)
	}
	return clusterByHamming(candidates, bound), nil
}

// clusterByHamming greedily assigns each asset to the first existing
// cluster whose seed hash is within bound, seeding a new cluster
// otherwise. Input order is deterministic (mtime DESC, filepath DESC),
// so repeated calls over unchanged state produce identical groups.
func clusterByHamming(candidates []hashedAsset, bound int) []DuplicateGroup {
	type cluster struct {
		seed    hashedAsset
		members []DuplicateMember
	}
	var clusters []*cluster
	for _, c := range candidates {
		placed := false
		for _, cl := range clusters {
			if d, ok := hammingDistance(cl.seed.hash, c.hash); ok && d <= bound {
				cl.members = append(cl.members, c.member)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{seed: c, members: []DuplicateMember{c.member}})
		}
	}

	var out []DuplicateGroup
	for _, cl := range clusters {
		if len(cl.members) < 2 {
			continue
		}
		out = append(out, DuplicateGroup{
			Key:     hex.EncodeToString(cl.seed.hash),
			Kind:    "perceptual",
			Members: cl.members,
		})
	}
	return out
}

// hammingDistance counts differing bits between two equal-length
// hashes; unequal lengths are incomparable.
func hammingDistance(a, b []byte) (int, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d, true
}
