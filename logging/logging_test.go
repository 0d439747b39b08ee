package logging_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/leave-ledger/logging"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	logger.Debug("balance recalculated", zap.String("person_id", "alice"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"balance recalculated"`)
	assert.Contains(t, string(data), `"person_id":"alice"`)
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	logger, err := logging.New(logging.Config{Level: "warn", Format: "console", Output: path})
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNew_BadOutput(t *testing.T) {
	_, err := logging.New(logging.Config{Output: filepath.Join(t.TempDir(), "missing", "server.log")})
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, logging.FromContext(context.Background()))

	logger := zap.NewExample()
	ctx := logging.WithContext(context.Background(), logger)
	assert.Same(t, logger, logging.FromContext(ctx))
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"client error", http.StatusConflict, zapcore.WarnLevel},
		{"server error", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A handler that logs through the request logger
			core, logs := observer.New(zapcore.DebugLevel)
			handler := middleware.RequestID(logging.Middleware(zap.New(core))(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					logging.FromContext(r.Context()).Info("inside")
					w.WriteHeader(tt.status)
				})))

			// WHEN: A request passes through
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/leaves?status=pending", nil))

			// THEN: The handler line and the access line share the request id
			entries := logs.All()
			require.Len(t, entries, 2)
			assert.Equal(t, "inside", entries[0].Message)
			access := entries[1]
			assert.Equal(t, tt.level, access.Level)
			fields := access.ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "/api/v1/leaves", fields["path"])
			assert.Equal(t, "status=pending", fields["query"])
			assert.NotEmpty(t, fields["request_id"])
			assert.Equal(t, fields["request_id"], entries[0].ContextMap()["request_id"])
		})
	}
}
