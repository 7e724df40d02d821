package paas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLogLogsInOnceAndSendsAgent(t *testing.T) {
	logins := 0
	var got CreateLogRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins++
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok", "expires_at": "2099-01-01T00:00:00Z"})
		case "/api/v1/logs":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k"}
	for i := 0; i < 2; i++ {
		if err := c.Log(context.Background(), "greenfloor_cycle", "info", map[string]any{"n": i}); err != nil {
			t.Fatalf("log err=%v", err)
		}
	}
	if logins != 1 {
		t.Fatalf("logins=%d want=1", logins)
	}
	if got.Agent != DefaultAgent || got.Action != "greenfloor_cycle" {
		t.Fatalf("agent=%s action=%s", got.Agent, got.Action)
	}
}

func TestLoginRequiresKey(t *testing.T) {
	c := &Client{BaseURL: "http://127.0.0.1:1"}
	if err := c.Login(context.Background()); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}

func TestLogBestEffortCtxWithoutClient(t *testing.T) {
	LogBestEffortCtx(context.Background(), "noop", "info", nil)
}

func TestInjectClientMiddlewareCarriesClientToHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var action string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok", "expires_at": "2099-01-01T00:00:00Z"})
		case "/api/v1/logs":
			var req CreateLogRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			action = req.Action
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	r := gin.New()
	r.Use(InjectClientMiddleware(&Client{BaseURL: srv.URL, APIKey: "k"}))
	r.PUT("/x", func(c *gin.Context) {
		LogBestEffort(c, "switch_updated", "info", nil)
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/x", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("code=%d", w.Code)
	}
	if action != "switch_updated" {
		t.Fatalf("action=%q want=switch_updated", action)
	}
}
