package enrich

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/majoor/assetindex/pkg/assetdb"
)

// DefaultExtractor is the no-external-binary fallback backend: it reads
// image dimensions with the standard image codecs and, for PNG files,
// embedded workflow/generation-parameters text chunks. Audio, video and
// 3D model files get dimensionless "degraded" metadata, the same
// best-effort posture the reference fallback readers fall back to when
// their optional dependency (hachoir) isn't installed.
//
// There is no pure-Go, dependency-free equivalent of ffprobe/hachoir in
// the example corpus, so audio/video duration probing stays degraded
// rather than reaching for an unrelated out-of-pack library.
type DefaultExtractor struct{}

func (DefaultExtractor) Name() string { return "default" }

func (DefaultExtractor) ExtractRaw(ctx context.Context, path string, kind assetdb.Kind) (Raw, error) {
	switch kind {
	case assetdb.KindImage:
		return extractImage(path)
	default:
		return Raw{Quality: "degraded"}, nil
	}
}

func extractImage(path string) (Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return Raw{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Raw{Quality: "degraded"}, nil
	}

	raw := Raw{
		Width: cfg.Width, Height: cfg.Height,
		HasWidth: true, HasHeight: true,
		Quality: "partial",
		Payload: map[string]any{
			"Composite:ImageSize": cfg.Width, "Image:ImageWidth": cfg.Width, "Image:ImageHeight": cfg.Height,
		},
	}

	if strings.EqualFold(filepath.Ext(path), ".png") {
		data, err := os.ReadFile(path)
		if err == nil {
			applyPNGTextChunks(&raw, data)
		}
	}
	return raw, nil
}

func applyPNGTextChunks(raw *Raw, data []byte) {
	chunks := pngTextChunks(data)
	for key, value := range chunks {
		isWorkflow, isGeneration := classifyTextChunk(key, value)
		switch {
		case isWorkflow:
			raw.WorkflowPayload = []byte(value)
		case isGeneration:
			raw.GenerationPayload = []byte(value)
		default:
			raw.Payload["Pillow:"+key] = value
		}
	}
	if len(raw.WorkflowPayload) > 0 || len(raw.GenerationPayload) > 0 {
		raw.Quality = "full"
	}
}
