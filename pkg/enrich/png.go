package enrich

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"strings"
)

// pngTextChunks extracts tEXt/zTXt/iTXt keyword/text pairs from a PNG
// file, the same ancillary chunks Pillow surfaces via Image.info. This
// is how ComfyUI and Automatic1111 embed "workflow"/"prompt"/
// "parameters" as plain PNG metadata.
func pngTextChunks(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) < 8 || !bytes.Equal(data[:8], pngSignature) {
		return out
	}
	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		bodyStart := pos + 8
		bodyEnd := bodyStart + length
		if bodyEnd+4 > len(data) || length < 0 {
			break
		}
		body := data[bodyStart:bodyEnd]

		switch typ {
		case "tEXt":
			if k, v, ok := splitNull(body); ok {
				out[k] = v
			}
		case "zTXt":
			if k, rest, ok := splitNull(body); ok {
				if len(rest) > 0 {
					if text, err := inflate(rest[1:]); err == nil {
						out[k] = string(text)
					}
				}
			}
		case "iTXt":
			if k, v, ok := parseITXt(body); ok {
				out[k] = v
			}
		case "IEND":
			pos = bodyEnd + 4
			return out
		}
		pos = bodyEnd + 4
	}
	return out
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func splitNull(body []byte) (key string, rest []byte, ok bool) {
	idx := bytes.IndexByte(body, 0)
	if idx < 0 {
		return "", nil, false
	}
	return string(body[:idx]), body[idx+1:], true
}

func parseITXt(body []byte) (key, text string, ok bool) {
	key, rest, ok := splitNull(body)
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:] // skip compression flag + compression method

	// language tag, then translated keyword, each NUL-terminated.
	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		return "", "", false
	}
	rest = rest[idx+1:]
	idx = bytes.IndexByte(rest, 0)
	if idx < 0 {
		return "", "", false
	}
	rest = rest[idx+1:]

	if compressed {
		decoded, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		return key, string(decoded), true
	}
	return key, string(rest), true
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// classifyTextChunk maps a PNG text chunk's keyword onto the
// workflow/generation-data/degraded buckets the extractor cares about,
// mirroring the key-name cases in the original ExifTool-like reader.
func classifyTextChunk(key, value string) (isWorkflow, isGeneration bool) {
	switch strings.ToLower(key) {
	case "workflow":
		return true, false
	case "prompt", "parameters":
		return false, true
	default:
		return false, false
	}
}
