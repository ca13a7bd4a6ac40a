package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := Start(context.Background(), "pipeline", "doc-1")
	root.SetAttr("reason", "upload")

	_, extract := StartChild(ctx, "extract")
	extract.End(nil)
	_, upsert := StartChild(ctx, "upsert")
	upsert.End(errors.New("index down"))
	root.End(nil)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "doc-1", upsert.TraceID)
	assert.EqualError(t, upsert.Err, "index down")
	v, ok := root.Attr("reason")
	assert.True(t, ok)
	assert.Equal(t, "upload", v)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.Log(ctx, log)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "WARN", last["level"])
	assert.Equal(t, "upsert", last["span"])
	assert.EqualValues(t, 1, last["depth"])
}

func TestStartChild_WithoutParent(t *testing.T) {
	ctx, span := StartChild(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
