package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tableside/internal/config"
	"tableside/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEndpoint(t *testing.T) {
	s := newTestServer(t, config.APIConfig{})

	first := s.openSession(t)
	assert.NotEmpty(t, first.GuestToken)
	assert.Len(t, first.Passcode, 6)
	require.NotNil(t, first.ExpiresAt)

	t.Run("PasscodeRequired", func(t *testing.T) {
		var res sessionResponse
		resp := s.do(t, http.MethodGet, "/session?salt=salt-t1", "", "", &res)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, res.IsSessionEstablished)
		assert.Equal(t, "passcode_required", res.Reason)
		assert.Empty(t, res.GuestToken)
		assert.Nil(t, res.ExpiresAt)
	})

	t.Run("JoinWithPasscode", func(t *testing.T) {
		var res sessionResponse
		resp := s.do(t, http.MethodGet, "/session?salt=salt-t1&passphrase="+strings.ToLower(first.Passcode), "", "", &res)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, res.IsSessionEstablished)
		assert.NotEmpty(t, res.GuestToken)
		assert.Equal(t, first.Passcode, res.Passcode)
	})

	t.Run("WrongPasscode", func(t *testing.T) {
		var res sessionResponse
		s.do(t, http.MethodGet, "/session?salt=salt-t1&passphrase=ZZZZZZ", "", "", &res)
		assert.False(t, res.IsSessionEstablished)
		assert.Equal(t, "passcode_mismatch", res.Reason)
	})

	t.Run("CheckOnly", func(t *testing.T) {
		var res sessionResponse
		resp := s.do(t, http.MethodGet, "/session?salt=salt-t1&checkOnly=true", first.GuestToken, "", &res)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, res.IsSessionEstablished)
		assert.NotEmpty(t, res.GuestToken)
	})

	t.Run("UnknownSalt", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/session?salt=nope-salt", nil)
		require.NoError(t, err)
		resp, err := s.ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `{"error":"table not found","statusCode":404}`, string(body))
		assert.NotContains(t, string(body), "nope-salt")
	})

	t.Run("MissingSalt", func(t *testing.T) {
		var res errorResponse
		resp := s.do(t, http.MethodGet, "/session", "", "", &res)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestGuestEndpoints(t *testing.T) {
	s := newTestServer(t, config.APIConfig{})
	guest := s.openSession(t)

	resp := s.do(t, http.MethodPost, "/session/call-staff", guest.GuestToken, `{"message":"more water"}`, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/session/call-staff", guest.GuestToken, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/session/call-staff", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/session/leave", guest.GuestToken, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestOrderEndpoints(t *testing.T) {
	s := newTestServer(t, config.APIConfig{})
	guest := s.openSession(t)
	staffToken := s.staffToken(t, s.staff)

	body := fmt.Sprintf(`{"tableId":%d,"lines":[{"menuItemId":%d,"quantity":2}]}`, s.table.ID, s.coffee.ID)
	var order models.Order
	resp := s.do(t, http.MethodPost, "/orders", guest.GuestToken, body, &order)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(600), order.TotalPrice)
	assert.Equal(t, models.OrderCreated, order.Status)
	assert.NotEmpty(t, order.GuestSessionID)

	t.Run("GuestReadsOwnOrder", func(t *testing.T) {
		var got models.Order
		resp := s.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), guest.GuestToken, "", &got)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, order.ID, got.ID)
	})

	t.Run("ForeignStaffDenied", func(t *testing.T) {
		var res errorResponse
		resp := s.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), s.staffToken(t, s.otherStaff), "", &res)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		var res errorResponse
		resp := s.do(t, http.MethodPatch, fmt.Sprintf("/orders/%d/status", order.ID), staffToken, `{"status":"paid"}`, &res)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "created", res.Data["from"])
		assert.Equal(t, "paid", res.Data["to"])
	})

	t.Run("StaffApproves", func(t *testing.T) {
		var got models.Order
		resp := s.do(t, http.MethodPatch, fmt.Sprintf("/orders/%d/status", order.ID), staffToken, `{"status":"approved"}`, &got)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.OrderApproved, got.Status)
	})

	t.Run("SameStatusConflict", func(t *testing.T) {
		resp := s.do(t, http.MethodPatch, fmt.Sprintf("/orders/%d/status", order.ID), staffToken, `{"status":"approved"}`, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("TableOrders", func(t *testing.T) {
		var res struct {
			Orders []models.Order `json:"orders"`
		}
		resp := s.do(t, http.MethodGet, fmt.Sprintf("/tables/%d/orders", s.table.ID), staffToken, "", &res)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, res.Orders, 1)
	})

	t.Run("UnknownField", func(t *testing.T) {
		var res errorResponse
		resp := s.do(t, http.MethodPost, "/orders", guest.GuestToken, `{"tableId":1,"bogus":true}`, &res)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid JSON body", res.Error)
	})

	t.Run("BadID", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/orders/abc", staffToken, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MissingOrder", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/orders/9999", staffToken, "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestTableEndpoints(t *testing.T) {
	s := newTestServer(t, config.APIConfig{})
	staffToken := s.staffToken(t, s.staff)
	path := fmt.Sprintf("/tables/%d", s.table.ID)

	var salt struct {
		Salt string `json:"salt"`
	}
	resp := s.do(t, http.MethodPost, path+"/salt", staffToken, "", &salt)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, salt.Salt, 32)
	assert.NotEqual(t, "salt-t1", salt.Salt)

	resp = s.do(t, http.MethodGet, "/session?salt=salt-t1", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var table models.Table
	resp = s.do(t, http.MethodPatch, path+"/status", staffToken, `{"status":"reserved"}`, &table)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TableReserved, table.Status)

	resp = s.do(t, http.MethodPatch, path+"/disabled", staffToken, `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPatch, path+"/disabled", staffToken, `{"disabled":true}`, &table)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, table.Disabled)

	resp = s.do(t, http.MethodPost, path+"/salt", s.staffToken(t, s.otherStaff), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, path+"/salt", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t, config.APIConfig{})

	var res struct {
		Token string `json:"token"`
	}
	resp := s.do(t, http.MethodPost, "/auth/login",
		"", `{"email":"ana@bistro.test","password":"`+testPassword+`"}`, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, res.Token)

	resp = s.do(t, http.MethodPost, fmt.Sprintf("/tables/%d/salt", s.table.ID), res.Token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var bad errorResponse
	resp = s.do(t, http.MethodPost, "/auth/login", "", `{"email":"ana@bistro.test","password":"nope"}`, &bad)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid email or password", bad.Error)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}})

	resp := s.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var res errorResponse
	resp = s.do(t, http.MethodGet, "/healthz", "", "", &res)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate limit exceeded", res.Error)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.APIConfig{})

	resp := s.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	svc := s.server.svc
	svc.Health = func(context.Context) error { return errors.New("redis down") }
	logger := zerolog.Nop()
	down := NewHTTPServer(config.APIConfig{}, svc, &logger)

	rec := httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws?access_token=q", nil)
	assert.Equal(t, "q", bearerToken(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", bearerToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(r))
}

func TestCheckOrigin(t *testing.T) {
	s := &HTTPServer{cfg: config.APIConfig{HTTP: config.APIHTTPConfig{AllowedOrigins: []string{"https://pos.example"}}}}

	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "https://POS.example")
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.checkOrigin(r))
}
