package stream

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return c, rec
}

func TestEmitWritesEventFrame(t *testing.T) {
	c, rec := newTestContext()
	sink := NewSink(c)

	require.NoError(t, sink.Emit(EventStatus, map[string]interface{}{"status": "Compiling user code"}))

	body := rec.Body.String()
	assert.Contains(t, body, "event: status\n")
	assert.Contains(t, body, `"status":"Compiling user code"`)
	assert.Contains(t, body, `"timestamp"`)
}

func TestEmitStopsAfterTerminalEvent(t *testing.T) {
	c, rec := newTestContext()
	sink := NewSink(c)

	require.NoError(t, sink.Emit(EventFinish, nil))
	assert.True(t, sink.Closed())

	before := rec.Body.Len()
	require.NoError(t, sink.Emit(EventStatus, map[string]interface{}{"status": "late"}))
	assert.Equal(t, before, rec.Body.Len(), "no frame should be written after a terminal event")
}

func TestHeaders(t *testing.T) {
	c, rec := newTestContext()
	NewSink(c)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream"))
}
