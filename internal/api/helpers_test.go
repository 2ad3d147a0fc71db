package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tableside/internal/auth"
	"tableside/internal/config"
	"tableside/internal/database"
	"tableside/internal/events"
	"tableside/internal/models"
	"tableside/internal/repository"
	"tableside/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct horse"
)

type testServer struct {
	ts     *httptest.Server
	server *HTTPServer
	db     *database.DB
	hub    *events.Hub
	tokens *auth.TokenIssuer

	place      *models.Place
	otherPlace *models.Place
	table      *models.Table
	staff      *models.Staff
	otherStaff *models.Staff
	coffee     *models.MenuItem
}

func newTestServer(t *testing.T, apiCfg config.APIConfig) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewMemorySessionRepository()
	hub := events.NewHub(16, &logger)
	tokens := auth.NewTokenIssuer(config.AuthConfig{
		JWTSecret:     testSecret,
		Issuer:        "tableside",
		GuestTokenTTL: 30 * time.Minute,
		StaffTokenTTL: time.Hour,
	})
	sessionsCfg := config.SessionsConfig{
		SaltBytes:          16,
		PasscodeLength:     6,
		PasscodeLifetime:   models.PasscodeLifetimeRolling,
		JoinAttemptsLimit:  5,
		JoinAttemptsWindow: time.Minute,
	}

	notifier := service.NewNotificationService(hub, &logger)
	credentials := service.NewCredentialService(db, store, notifier, sessionsCfg.SaltBytes, &logger)
	svc := Services{
		Credentials: credentials,
		Sessions:    service.NewSessionService(credentials, store, tokens, notifier, sessionsCfg, 30*time.Minute, &logger),
		Orders:      service.NewOrderService(db, store, notifier, true, &logger),
		StaffAuth:   service.NewStaffAuthService(db, tokens, &logger),
		Resolver:    auth.NewResolver(tokens, db, store),
		Hub:         hub,
	}

	s := &testServer{db: db, hub: hub, tokens: tokens}
	s.server = NewHTTPServer(apiCfg, svc, &logger)
	s.ts = httptest.NewServer(s.server.Handler())
	t.Cleanup(s.ts.Close)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)

	s.place = &models.Place{Name: "Bistro"}
	require.NoError(t, db.CreatePlace(ctx, s.place))
	s.otherPlace = &models.Place{Name: "Diner"}
	require.NoError(t, db.CreatePlace(ctx, s.otherPlace))

	s.table = &models.Table{PlaceID: s.place.ID, Label: "T1", Capacity: 4, Salt: "salt-t1"}
	require.NoError(t, db.CreateTable(ctx, s.table))

	s.staff = &models.Staff{PlaceID: s.place.ID, Name: "Ana", Email: "ana@bistro.test", PasswordHash: hash, Active: true}
	require.NoError(t, db.CreateStaff(ctx, s.staff))
	s.otherStaff = &models.Staff{PlaceID: s.otherPlace.ID, Name: "Dan", Email: "dan@diner.test", PasswordHash: hash, Active: true}
	require.NoError(t, db.CreateStaff(ctx, s.otherStaff))

	s.coffee = &models.MenuItem{PlaceID: s.place.ID, Name: "Coffee", Price: 300, Available: true}
	require.NoError(t, db.CreateMenuItem(ctx, s.coffee))

	return s
}

func (s *testServer) staffToken(t *testing.T, staff *models.Staff) string {
	t.Helper()
	raw, _, err := s.tokens.IssueStaff(staff)
	require.NoError(t, err)
	return raw
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (s *testServer) do(t *testing.T, method, path, token, body string, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *testServer) openSession(t *testing.T) sessionResponse {
	t.Helper()
	var res sessionResponse
	resp := s.do(t, http.MethodGet, "/session?salt="+s.table.Salt, "", "", &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, res.IsSessionEstablished, "reason: %s", res.Reason)
	return res
}
