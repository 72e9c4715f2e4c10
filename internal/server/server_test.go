package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/tally/backend/internal/broadcast"
	"github.com/emilythestrangee/tally/backend/internal/config"
	"github.com/emilythestrangee/tally/backend/internal/database"
	"github.com/emilythestrangee/tally/backend/internal/handlers"
	"github.com/emilythestrangee/tally/backend/internal/middleware"
	"github.com/emilythestrangee/tally/backend/internal/notifier"
	"github.com/emilythestrangee/tally/backend/internal/questions"
	"github.com/emilythestrangee/tally/backend/internal/survey"
)

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *broadcast.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	hub := broadcast.NewHub(broadcast.Options{Snapshot: store.Tallies})
	t.Cleanup(hub.Close)

	svc := survey.NewService(store, notifier.NewDirect(store, hub))
	h := handlers.NewHandler(handlers.Deps{
		Service:  svc,
		Store:    store,
		Sessions: hub,
		Catalog:  questions.MustDefault(),
	})
	return &Server{cfg: cfg, handler: h, hub: hub}, hub
}

func TestNewServer(t *testing.T) {
	s, hub := newTestServer(t, &config.Config{Port: 3001, CORSOrigins: []string{"*"}})
	srv := NewServer(s.cfg, s.handler, hub)

	assert.Equal(t, "0.0.0.0:3001", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &config.Config{CORSOrigins: []string{"https://survey.example.com"}})
	r := s.RegisterRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/api/survey/submit", nil)
	req.Header.Set("Origin", "https://survey.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://survey.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/survey/submit", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestResetRequiresTokenWhenSecretSet(t *testing.T) {
	s, _ := newTestServer(t, &config.Config{CORSOrigins: []string{"*"}, AdminTokenSecret: "s3cret"})
	r := s.RegisterRoutes()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.IssueAdminToken("s3cret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmissionReachesSocket(t *testing.T) {
	s, hub := newTestServer(t, &config.Config{CORSOrigins: []string{"*"}})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/socket", nil)
	require.NoError(t, err)
	defer conn.Close()

	var env broadcast.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, broadcast.EventTalliesUpdated, env.Event)
	assert.JSONEq(t, `{}`, string(env.Data))
	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	body := strings.NewReader(`{"userId":"u1","userName":"Ada","questionId":"1","selectedOption":"Often"}`)
	resp, err := http.Post(ts.URL+"/api/survey/submit", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, broadcast.EventTalliesUpdated, env.Event)
	assert.JSONEq(t, `{"1":{"Often":1}}`, string(env.Data))
}
