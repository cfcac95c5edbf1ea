package indexer

import (
	"path/filepath"
	"strings"

	"github.com/majoor/assetindex/pkg/assetdb"
)

// extensionsByKind mirrors the original implementation's classification
// table; an asset's kind is derived from its extension and never changes
// for a given filepath.
var extensionsByKind = map[assetdb.Kind]map[string]struct{}{
	assetdb.KindImage: setOf(".png", ".jpg", ".jpeg", ".webp", ".gif"),
	assetdb.KindVideo: setOf(".mp4", ".mov", ".webm", ".mkv"),
	assetdb.KindAudio: setOf(".wav", ".mp3", ".flac", ".ogg", ".aiff", ".aif", ".m4a", ".aac"),
	assetdb.KindModel3D: setOf(".obj", ".fbx", ".glb", ".gltf", ".stl"),
}

func setOf(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}
	return m
}

// ClassifyExtension returns the asset kind for filename's extension and
// ok=false when the extension is unrecognized.
func ClassifyExtension(filename string) (assetdb.Kind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for kind, exts := range extensionsByKind {
		if _, ok := exts[ext]; ok {
			return kind, true
		}
	}
	return "", false
}
