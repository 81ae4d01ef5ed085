// ABOUTME: Structured JSON log lines and the gin request logging middleware
// ABOUTME: SetupFile redirects the standard logger to a rotating file
package logging

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogKV logs a structured JSON line with a level, message, and arbitrary fields.
func LogKV(level, msg string, fields map[string]interface{}) {
	log.Println(formatKV(level, msg, fields))
}

func formatKV(level, msg string, fields map[string]interface{}) string {
	entry := map[string]interface{}{
		"level": level,
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	b, _ := json.Marshal(entry)
	return string(b)
}

// JSONLogger returns a gin middleware that logs each request as one JSON line.
func JSONLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		level := "info"
		if status >= http.StatusInternalServerError || len(c.Errors) > 0 {
			level = "error"
		}

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":  c.ClientIP(),
			"bytes_out":  c.Writer.Size(),
		}
		if userID, ok := c.Get("user_id"); ok {
			fields["user_id"] = userID
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}

		LogKV(level, "request", fields)
	}
}

// FileOptions controls log rotation.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stderr also copies log lines to standard error.
	Stderr bool
}

// SetupFile sends the standard logger to a rotating file. The returned
// closer flushes and closes the file.
func SetupFile(opts FileOptions) io.Closer {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = 28
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	var out io.Writer = rotator
	if opts.Stderr {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	log.SetOutput(out)
	return rotator
}
