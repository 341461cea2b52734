package middleware

import (
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"opledger/internal/audit"
)

// Logger writes one JSON access-log line per request to stdout.
func Logger(loc *time.Location) fiber.Handler {
	return LoggerWithWriter(os.Stdout, loc)
}

// LoggerWithWriter is Logger with an explicit destination.
// Fields: ts, level, msg, request_id, method, path, status, latency (ms).
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return AccessLog(audit.NewJSONSink(w, loc))
}

// AccessLog records each request on sink.
func AccessLog(sink audit.Sink) fiber.Handler {
	sink = audit.OrNop(sink)

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := responseStatus(c, err)

		level := audit.LevelInfo
		switch {
		case status >= 500:
			level = audit.LevelError
		case status >= 400:
			level = audit.LevelWarn
		}

		sink.Record(c.UserContext(), level, "http_request", map[string]any{
			"request_id": RequestIDFrom(c),
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		})

		return err
	}
}
