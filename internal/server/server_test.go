package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailpipe/internal/config"
	"mailpipe/internal/models"
	"mailpipe/internal/notify"
	"mailpipe/internal/pipeline"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubAccounts struct{}

func (stubAccounts) TriggerAll(context.Context) (int, error) { return 5, nil }
func (stubAccounts) Status() []pipeline.WorkerStatus {
	return []pipeline.WorkerStatus{{AccountID: "acc1", Connected: true}}
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(context.Context, *models.Email) []notify.Result { return nil }

func newTestServer(deps Dependencies) *Server {
	cfg := &config.Config{Version: "test", ReplyCacheTTL: time.Minute, BackfillImage: "img"}
	srv := New(cfg, deps, zerolog.Nop())
	srv.Initialize()
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(Dependencies{Accounts: stubAccounts{}, Dispatcher: stubDispatcher{}})

	tests := []struct {
		name           string
		method         string
		target         string
		expectedStatus int
		expectedBody   string
	}{
		{"health", http.MethodGet, "/healthz", http.StatusOK, ""},
		{"db health without store", http.MethodGet, "/healthz/db", http.StatusServiceUnavailable, ""},
		{"root", http.MethodGet, "/api/", http.StatusOK, `{"service":"mailpipe API","version":"test","status":"running"}`},
		{"fetch", http.MethodPost, "/api/fetch-emails", http.StatusOK, `{"success":true,"emailsIndexed":5}`},
		{"accounts", http.MethodGet, "/api/accounts", http.StatusOK, `[{"accountId":"acc1","connected":true}]`},
		{"test webhooks", http.MethodPost, "/api/test-webhooks", http.StatusOK, `{"success":true,"sinks":[]}`},
		{"email routes disabled without store", http.MethodGet, "/api/emails", http.StatusNotFound, ""},
		{"analytics disabled without database", http.MethodGet, "/api/analytics", http.StatusNotFound, ""},
		{"admin disabled without cluster", http.MethodPost, "/api/admin/backfill-job", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestPurgeRepliesStopsOnCancel(t *testing.T) {
	srv := newTestServer(Dependencies{Accounts: stubAccounts{}, Dispatcher: stubDispatcher{}})
	srv.replies.Set("k", "v")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.PurgeReplies(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PurgeReplies did not stop")
	}
	assert.Equal(t, 1, srv.replies.Len())
}
