package sse_test

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fivetwenty-io/masto/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_MastodonStream(t *testing.T) {
	t.Parallel()

	stream := ":)\n" +
		"event: update\n" +
		"data: {\"id\":\"1\"}\n" +
		"\n" +
		":thump\n" +
		"event: delete\r\n" +
		"data: 42\r\n" +
		"\r\n" +
		"retry: 2500\n" +
		"data: line one\n" +
		"data: line two\n" +
		"\n"

	parser := sse.NewParser(strings.NewReader(stream))

	event, err := parser.Next()
	require.NoError(t, err)
	assert.Equal(t, sse.Event{Type: "update", Data: `{"id":"1"}`}, event)

	event, err = parser.Next()
	require.NoError(t, err)
	assert.Equal(t, "delete", event.Type)
	assert.Equal(t, "42", event.Data)

	event, err = parser.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", event.Type)
	assert.Equal(t, "line one\nline two", event.Data)
	assert.Equal(t, 2500*time.Millisecond, parser.Retry())

	_, err = parser.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParser_FlushesTrailingEventAtEOF(t *testing.T) {
	t.Parallel()

	parser := sse.NewParser(strings.NewReader("event: notification\ndata: {}"))

	event, err := parser.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", event.Type)

	_, err = parser.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParser_EventWithoutDataIsSkipped(t *testing.T) {
	t.Parallel()

	parser := sse.NewParser(strings.NewReader("event: update\n\nevent: filters_changed\ndata: \n\n"))

	event, err := parser.Next()
	require.NoError(t, err)
	assert.Equal(t, "filters_changed", event.Type)
	assert.Empty(t, event.Data)
}
