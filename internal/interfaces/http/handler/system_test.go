package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantDB     string
	}{
		{"database up", pingFunc(func(context.Context) error { return nil }), http.StatusOK, "up"},
		{"database down", pingFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable, "down"},
		{"no database configured", nil, http.StatusOK, "up"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSystemHandler(tc.db, "1.4.0")
			r := gin.New()
			r.GET("/health", h.Health)

			w := doJSON(r, http.MethodGet, "/health", nil)
			assert.Equal(t, tc.wantStatus, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantDB, resp.Database)
			assert.Equal(t, "1.4.0", resp.Version)
			assert.NotEmpty(t, resp.Go)
		})
	}
}

func TestSystemHandler_Ping(t *testing.T) {
	r := gin.New()
	r.GET("/ping", NewSystemHandler(nil, "dev").Ping)

	resp := decode(t, doJSON(r, http.MethodGet, "/ping", nil))
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Data.(map[string]any)["message"])
}
