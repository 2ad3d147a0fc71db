package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"tableside/internal/auth"
	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 4096
	methodJoin    = "joinPlaceGroup"
	methodLeave   = "leavePlaceGroup"
	frameNotify   = "ReceiveNotification"
	frameError    = "error"
	frameJoined   = "joined"
	frameLeft     = "left"
)

type clientFrame struct {
	Method  string `json:"method"`
	PlaceID int64  `json:"placeId"`
}

type serverFrame struct {
	Type    string                    `json:"type"`
	Message *models.TableNotification `json:"message,omitempty"`
	PlaceID int64                     `json:"placeId,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// wsClient pumps hub notifications to one staff connection.
type wsClient struct {
	conn    *websocket.Conn
	hub     *events.Hub
	sub     *events.Subscriber
	staff   *models.Staff
	logger  zerolog.Logger
	writeMu sync.Mutex
}

func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	staff, err := auth.FromContext(r.Context()).CurrentStaff(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{
		conn:   conn,
		hub:    s.svc.Hub,
		sub:    s.svc.Hub.NewSubscriber(),
		staff:  staff,
		logger: s.logger.With().Int64("staff_id", staff.ID).Logger(),
	}
	c.logger.Info().Str("subscriber", c.sub.ID()).Msg("staff connected")

	go c.writePump()
	c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.Remove(c.sub)
		_ = c.conn.Close()
		c.logger.Info().Str("subscriber", c.sub.ID()).Msg("staff disconnected")
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				c.logger.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if !c.handle(frame) {
			return
		}
	}
}

// handle applies one client frame. It returns false once the subscriber is gone.
func (c *wsClient) handle(frame clientFrame) bool {
	switch frame.Method {
	case methodJoin:
		if frame.PlaceID != c.staff.PlaceID {
			c.logger.Warn().Int64("place_id", frame.PlaceID).Msg("place group access denied")
			return c.send(serverFrame{Type: frameError, Error: domain.Authorization("place access denied").Message})
		}
		if err := c.hub.Join(c.sub, events.PlaceTopic(frame.PlaceID)); err != nil {
			return false
		}
		return c.send(serverFrame{Type: frameJoined, PlaceID: frame.PlaceID})
	case methodLeave:
		c.hub.Leave(c.sub, events.PlaceTopic(frame.PlaceID))
		return c.send(serverFrame{Type: frameLeft, PlaceID: frame.PlaceID})
	default:
		return c.send(serverFrame{Type: frameError, Error: "unknown method"})
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case n, ok := <-c.sub.C():
			if !ok {
				// dropped by the hub or removed on disconnect
				c.writeMu.Lock()
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "queue overflow"))
				c.writeMu.Unlock()
				return
			}
			if !c.send(serverFrame{Type: frameNotify, Message: n}) {
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsClient) send(frame serverFrame) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		c.logger.Debug().Err(err).Msg("websocket write failed")
		return false
	}
	return true
}
