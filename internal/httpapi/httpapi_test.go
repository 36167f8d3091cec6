package httpapi

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cvcounter/internal/config"
	"cvcounter/internal/database"
)

func testDocument() *config.Document {
	return &config.Document{
		Detections: map[string]config.DetectionSettings{
			"dock-1": {SourceURI: "testdata/missing.mp4", CountingArea: [][2]int{{0, 0}, {0, 100}, {100, 100}, {100, 0}}},
		},
		DetectionDefault: config.DetectionSettings{Confidence: 0.25, IOU: 0.45, Device: "cpu"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := database.New(":memory:", "")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard, "", 0)
	return NewServer(testDocument(), "", store, logger)
}

func newTestServerWithAuth(t *testing.T, username, password string) *Server {
	t.Helper()
	store, err := database.New(":memory:", "")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	cfg := testDocument()
	cfg.Users = map[string]config.UserCredential{username: {PasswordHash: string(hash)}}

	logger := log.New(io.Discard, "", 0)
	return NewServer(cfg, "", store, logger)
}

func TestUnknownLocationReturns400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/counter/missing-dock", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCountWithoutActiveEngineReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/save_count/dock-1", strings.NewReader("correct_count=1&defect_count=0"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNonAjaxCommandRedirects(t *testing.T) {
	s := newTestServer(t)
	_, err := s.ensureEngine("dock-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/pause_count/dock-1", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestAjaxCommandReturnsJSON(t *testing.T) {
	s := newTestServer(t)
	_, err := s.ensureEngine("dock-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/pause_count/dock-1", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paused")
}

func TestReportsForUnknownLocationReturnsEmptyPage(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/reports/never-seen", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "has_next=false")
}

func TestAuthDisabledWithNoUsersAllowsMutatingEndpoints(t *testing.T) {
	s := newTestServer(t)
	assert.False(t, s.authenticator.IsEnabled())

	req := httptest.NewRequest(http.MethodGet, "/reset_count/dock-1", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginDisabledReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=s3cret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginIssuesTokenForValidCredentials(t *testing.T) {
	s := newTestServerWithAuth(t, "alice", "s3cret")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=s3cret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"token\"")
	assert.Contains(t, rec.Body.String(), "expires_in_seconds")
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newTestServerWithAuth(t, "alice", "s3cret")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMutatingEndpointRequiresTokenWhenAuthEnabled(t *testing.T) {
	s := newTestServerWithAuth(t, "alice", "s3cret")
	_, err := s.ensureEngine("dock-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/pause_count/dock-1", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSaveCountNotificationNamesAuthenticatedActor(t *testing.T) {
	s := newTestServerWithAuth(t, "alice", "s3cret")
	_, err := s.ensureEngine("dock-1")
	require.NoError(t, err)

	events, cancel := s.bus.Subscribe("dock-1", 8)
	defer cancel()

	token, _, err := s.authenticator.Authenticate("alice", "s3cret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/save_count/dock-1", strings.NewReader("correct_count=1&defect_count=0"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var notified string
	for i := 0; i < 8; i++ {
		select {
		case evt := <-events:
			if evt.Notify != nil && strings.HasPrefix(evt.Notify.Message, "count saved") {
				notified = evt.Notify.Message
			}
		default:
		}
		if notified != "" {
			break
		}
	}
	assert.Contains(t, notified, "alice")
}
