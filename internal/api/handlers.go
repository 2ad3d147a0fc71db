package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"tableside/internal/auth"
	"tableside/internal/domain"
	"tableside/internal/models"
	"tableside/internal/service"
)

type sessionResponse struct {
	IsSessionEstablished bool       `json:"isSessionEstablished"`
	GuestToken           string     `json:"guestToken,omitempty"`
	Passcode             string     `json:"passcode,omitempty"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
	Reason               string     `json:"reason,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Health(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	salt := q.Get("salt")
	if salt == "" {
		writeError(w, s.logger, domain.Validation("salt is required"))
		return
	}

	var (
		res *service.EstablishResult
		err error
	)
	if checkOnly, _ := strconv.ParseBool(q.Get("checkOnly")); checkOnly {
		res, err = s.svc.Sessions.Check(r.Context(), salt, auth.FromContext(r.Context()))
	} else {
		res, err = s.svc.Sessions.Establish(r.Context(), salt, q.Get("passphrase"))
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	resp := sessionResponse{
		IsSessionEstablished: res.Established,
		GuestToken:           res.Token,
		Passcode:             res.Passcode,
		Reason:               res.Reason,
	}
	if res.Established {
		resp.ExpiresAt = &res.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Sessions.Leave(r.Context(), auth.FromContext(r.Context())); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCallStaff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &body, true); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.svc.Sessions.CallStaff(r.Context(), auth.FromContext(r.Context()), body.Message); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, s.logger, err)
		return
	}

	token, exp, err := s.svc.StaffAuth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expiresAt": exp})
}

type createOrderRequest struct {
	TableID        int64  `json:"tableId"`
	CustomerID     *int64 `json:"customerId"`
	GuestSessionID string `json:"guestSessionId"`
	PaymentType    string `json:"paymentType"`
	Note           string `json:"note"`
	Lines          []struct {
		MenuItemID int64 `json:"menuItemId"`
		Quantity   int   `json:"quantity"`
		Discount   int64 `json:"discount"`
	} `json:"lines"`
}

func (s *HTTPServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, s.logger, err)
		return
	}

	in := service.CreateOrderInput{
		TableID:        body.TableID,
		CustomerID:     body.CustomerID,
		GuestSessionID: body.GuestSessionID,
		PaymentType:    models.PaymentType(body.PaymentType),
		Note:           body.Note,
		Lines:          make([]service.OrderLineInput, 0, len(body.Lines)),
	}
	for _, l := range body.Lines {
		in.Lines = append(in.Lines, service.OrderLineInput{
			MenuItemID: l.MenuItemID,
			Quantity:   l.Quantity,
			Discount:   l.Discount,
		})
	}

	order, err := s.svc.Orders.CreateOrder(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *HTTPServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	order, err := s.svc.Orders.GetOrder(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *HTTPServer) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var body struct {
		Status      string `json:"status"`
		PaymentType string `json:"paymentType"`
	}
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, s.logger, err)
		return
	}

	order, err := s.svc.Orders.TransitionStatus(r.Context(), auth.FromContext(r.Context()), id,
		models.OrderStatus(body.Status), models.PaymentType(body.PaymentType))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *HTTPServer) handleTableOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	orders, err := s.svc.Orders.ListTableOrders(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *HTTPServer) handleRegenerateSalt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	salt, err := s.svc.Credentials.RegenerateSalt(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"salt": salt})
}

func (s *HTTPServer) handleTableStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, s.logger, err)
		return
	}

	table, err := s.svc.Credentials.SetTableStatus(r.Context(), auth.FromContext(r.Context()), id, models.TableStatus(body.Status))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *HTTPServer) handleTableDisabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var body struct {
		Disabled *bool `json:"disabled"`
	}
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if body.Disabled == nil {
		writeError(w, s.logger, domain.Validation("disabled is required"))
		return
	}

	table, err := s.svc.Credentials.SetTableDisabled(r.Context(), auth.FromContext(r.Context()), id, *body.Disabled)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
