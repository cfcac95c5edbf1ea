package enrich

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPNGWithTextChunk(t *testing.T, keyword, text string, compressed bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(pngSignature)

	var body []byte
	var typ string
	if compressed {
		var zbuf bytes.Buffer
		w := zlib.NewWriter(&zbuf)
		_, err := w.Write([]byte(text))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		body = append([]byte(keyword), 0, 0) // keyword terminator, compression method=0
		body = append(body, zbuf.Bytes()...)
		typ = "zTXt"
	} else {
		body = append([]byte(keyword), 0)
		body = append(body, []byte(text)...)
		typ = "tEXt"
	}
	writeChunk(&buf, typ, body)
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, typ string, body []byte) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(body)))
	buf.Write(lenBytes[:])
	buf.WriteString(typ)
	buf.Write(body)
	buf.Write([]byte{0, 0, 0, 0}) // fake CRC, unread by our parser
}

func TestPNGTextChunksReadsUncompressedTEXt(t *testing.T) {
	data := buildPNGWithTextChunk(t, "workflow", `{"nodes":[]}`, false)
	chunks := pngTextChunks(data)
	assert.Equal(t, `{"nodes":[]}`, chunks["workflow"])
}

func TestPNGTextChunksReadsCompressedZTXt(t *testing.T) {
	data := buildPNGWithTextChunk(t, "parameters", "a photo of a cat, steps: 20", true)
	chunks := pngTextChunks(data)
	assert.Equal(t, "a photo of a cat, steps: 20", chunks["parameters"])
}

func TestPNGTextChunksRejectsNonPNG(t *testing.T) {
	chunks := pngTextChunks([]byte("not a png"))
	assert.Empty(t, chunks)
}

func TestClassifyTextChunk(t *testing.T) {
	workflow, generation := classifyTextChunk("workflow", "x")
	assert.True(t, workflow)
	assert.False(t, generation)

	workflow, generation = classifyTextChunk("parameters", "x")
	assert.False(t, workflow)
	assert.True(t, generation)

	workflow, generation = classifyTextChunk("Software", "x")
	assert.False(t, workflow)
	assert.False(t, generation)
}
