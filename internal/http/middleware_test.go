package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"meetscribe/internal/contextutil"
)

func TestLoggerMiddleware(t *testing.T) {
	var sawLogger bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = contextutil.LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	LoggerMiddleware(handler).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !sawLogger {
		t.Error("request context has no logger")
	}
}

func TestCORS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/recordings", nil)
		req.Header.Set("Origin", "http://app.example.com")
		w := httptest.NewRecorder()
		CORS(handler).ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("regular request passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		w := httptest.NewRecorder()
		CORS(handler).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
	})
}
