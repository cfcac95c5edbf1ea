package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	reconfigure()

	return buf, func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}
}

func TestLevelFiltering(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("WARN")
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	require.NotContains(t, out, "debug message")
	require.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestSetFormatJSON(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("DEBUG")
	SetFormat("json")
	defer SetFormat("text")

	Info("hello", "key", "value")
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestSetFormatIgnoresInvalid(t *testing.T) {
	SetFormat("json")
	SetFormat("xml")
	assert.Equal(t, "json", currentFormat.Load())
	SetFormat("text")
}

func TestContextFieldsPrefixed(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")

	ctx := WithContext(context.Background(), &LogContext{RequestID: "req-1", ClientID: "client-a"})
	InfoCtx(ctx, "handled request")

	out := buf.String()
	assert.True(t, strings.Contains(out, "request_id=req-1"))
	assert.True(t, strings.Contains(out, "client_id=client-a"))
}

func TestFromContextNil(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}
