package enrich

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/pkg/assetdb"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDefaultExtractorReadsImageDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeTestPNG(t, path, 64, 32)

	raw, err := DefaultExtractor{}.ExtractRaw(context.Background(), path, assetdb.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 64, raw.Width)
	assert.Equal(t, 32, raw.Height)
	assert.Equal(t, "partial", raw.Quality)
}

func TestDefaultExtractorDegradesNonImageKinds(t *testing.T) {
	raw, err := DefaultExtractor{}.ExtractRaw(context.Background(), "/does/not/matter.wav", assetdb.KindAudio)
	require.NoError(t, err)
	assert.Equal(t, "degraded", raw.Quality)
	assert.False(t, raw.HasWidth)
}

type countingBackend struct {
	calls int
}

func (c *countingBackend) Name() string { return "counting" }
func (c *countingBackend) ExtractRaw(ctx context.Context, path string, kind assetdb.Kind) (Raw, error) {
	c.calls++
	return Raw{Width: 10, Height: 20, HasWidth: true, HasHeight: true, Quality: "partial"}, nil
}

func TestServiceExtractCachesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeTestPNG(t, path, 10, 20)

	cache, err := assetdb.OpenMetadataCache(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer cache.Close()

	backend := &countingBackend{}
	svc := NewService(backend, cache)

	_, err = svc.Extract(context.Background(), path, assetdb.KindImage)
	require.NoError(t, err)
	_, err = svc.Extract(context.Background(), path, assetdb.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls, "second call should be served from cache")

	// Changing the file's mtime invalidates the cached state hash.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
	_, err = svc.Extract(context.Background(), path, assetdb.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) ExtractRaw(context.Context, string, assetdb.Kind) (Raw, error) {
	return Raw{}, errors.New("boom")
}

func TestServiceExtractDegradesOnBackendError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeTestPNG(t, path, 1, 1)

	svc := NewService(failingBackend{}, nil)
	result, err := svc.Extract(context.Background(), path, assetdb.KindImage)
	require.NoError(t, err)
	assert.Equal(t, "degraded", result.Quality)
}
