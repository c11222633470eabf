package driver

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agritutor/agritutor/internal/tutor/content"
)

func TestTracingWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")
	stop, err := EnableTracing(path)
	require.NoError(t, err)
	require.True(t, IsTracingEnabled())

	messages := []content.Message{content.UserMessage(
		content.Text("What is wrong with this leaf?"),
		content.Inline(content.ContentTypeJPEG, []byte{1, 2, 3, 4}),
	)}
	Trace(TraceEntry{Driver: "gemini", Model: "m", Messages: SummarizeMessages(messages), Text: "rust"})
	Trace(TraceEntry{Driver: "gemini", Error: "boom"})
	stop()
	require.False(t, IsTracingEnabled())

	// Writes after stop are dropped.
	Trace(TraceEntry{Driver: "gemini"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint:errcheck

	var entries []TraceEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry TraceEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, entries, 2)

	require.Equal(t, "rust", entries[0].Text)
	require.Len(t, entries[0].Messages, 1)
	parts := entries[0].Messages[0].Parts
	require.Len(t, parts, 2)
	require.Equal(t, "What is wrong with this leaf?", parts[0].Text)
	require.Equal(t, content.ContentTypeJPEG, parts[1].Type)
	require.Equal(t, 4, parts[1].Bytes)
	require.Empty(t, parts[1].Text)
	require.Equal(t, "boom", entries[1].Error)
}

func TestResponseText(t *testing.T) {
	resp := &Response{Content: []content.ContentBlock{content.Text("a"), content.Inline(content.ContentTypePNG, []byte{1}), content.Text("b")}}
	require.Equal(t, "ab", resp.Text())

	var nilResp *Response
	require.Empty(t, nilResp.Text())
}
