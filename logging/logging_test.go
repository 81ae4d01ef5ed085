package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	})
	return &buf
}

func TestLogKV(t *testing.T) {
	buf := captureLog(t)

	LogKV("warn", "remote unreachable", map[string]interface{}{"url": "http://x"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "remote unreachable", entry["msg"])
	assert.Equal(t, "http://x", entry["url"])
	assert.NotEmpty(t, entry["ts"])
}

func TestJSONLogger(t *testing.T) {
	buf := captureLog(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(JSONLogger())
	r.GET("/api/:table", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "/api/contacts", entry["path"])
	assert.Equal(t, "/api/:table", entry["route"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crmdesk.log")
	closer := SetupFile(FileOptions{Path: path})
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	log.Printf("hello from the backend")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello from the backend"))
}
