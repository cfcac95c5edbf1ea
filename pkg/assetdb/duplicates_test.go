package assetdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDuplicateGroupsExactByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	upsertOne(t, s, "/out/a.png", 100, 10)
	upsertOne(t, s, "/out/a_copy.png", 200, 10)
	upsertOne(t, s, "/out/unique.png", 300, 20)

	for i, fp := range []string{"/out/a.png", "/out/a_copy.png", "/out/unique.png"} {
		asset, aerr := GetByFilepath(ctx, s, CanonicalFilepathKey(fp))
		require.Nil(t, aerr)
		hash := "samehash"
		if i == 2 {
			hash = "otherhash"
		}
		require.Nil(t, ApplyContentHash(ctx, s, asset.ID, hash, "", HashComputed))
	}

	groups, aerr := ListDuplicateGroups(ctx, s, 0)
	require.Nil(t, aerr)
	require.Len(t, groups, 1)
	assert.Equal(t, "content", groups[0].Kind)
	assert.Equal(t, "samehash", groups[0].Key)
	require.Len(t, groups[0].Members, 2)
	// Ordered by mtime DESC within the group.
	assert.Equal(t, "/out/a_copy.png", groups[0].Members[0].Filepath)
}

func TestListDuplicateGroupsPerceptualWithinHammingBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	upsertOne(t, s, "/out/p1.png", 100, 10)
	upsertOne(t, s, "/out/p2.png", 200, 11)
	upsertOne(t, s, "/out/far.png", 300, 12)

	// ff00 and ff01 differ by one bit; 00ff is 16 bits from ff00 and 15 from ff01.
	hashes := map[string]string{"/out/p1.png": "ff00", "/out/p2.png": "ff01", "/out/far.png": "00ff"}
	for fp, ph := range hashes {
		asset, aerr := GetByFilepath(ctx, s, CanonicalFilepathKey(fp))
		require.Nil(t, aerr)
		require.Nil(t, ApplyContentHash(ctx, s, asset.ID, "c-"+fp, ph, HashComputed))
	}

	groups, aerr := ListDuplicateGroups(ctx, s, 4)
	require.Nil(t, aerr)
	require.Len(t, groups, 1)
	assert.Equal(t, "perceptual", groups[0].Kind)
	require.Len(t, groups[0].Members, 2)
}

func TestHammingDistanceRejectsUnequalLengths(t *testing.T) {
	_, ok := hammingDistance([]byte{0xff}, []byte{0xff, 0x00})
	assert.False(t, ok)

	d, ok := hammingDistance([]byte{0b1010}, []byte{0b0101})
	require.True(t, ok)
	assert.Equal(t, 4, d)
}
