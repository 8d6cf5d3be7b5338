package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"safewatch/internal/dashboard"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 4096
)

// Frame is the JSON envelope exchanged over the socket in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsEmitter serializes writes to one websocket connection.
type wsEmitter struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (e *wsEmitter) Emit(_ context.Context, event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.SetWriteDeadline(time.Now().Add(e.writeTimeout)); err != nil {
		return err
	}
	return e.conn.WriteJSON(outFrame{Event: event, Data: data})
}

type WSHandler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	log          *zap.Logger
}

func NewWSHandler(hub *Hub, writeTimeout time.Duration, log *zap.Logger) *WSHandler {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		log:          log,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	em := &wsEmitter{conn: conn, writeTimeout: h.writeTimeout}
	release, err := h.hub.Connect(ctx, id, em)
	if err != nil {
		h.log.Warn("websocket connect failed", zap.String("conn_id", id), zap.Error(err))
		return
	}
	defer release()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.ping(ctx, conn)

	for {
		var in Frame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", zap.String("conn_id", id), zap.Error(err))
			}
			return
		}
		if in.Event != EventAcknowledgeAlert {
			h.log.Debug("ignoring client event", zap.String("conn_id", id), zap.String("event", in.Event))
			continue
		}
		alertID, ok := ParseAlertID(in.Data)
		if !ok {
			_ = h.hub.Reply(ctx, id, EventAcknowledgeResult, dashboard.AckResult{Success: false, Message: "Invalid alert id"})
			continue
		}
		if _, err := h.hub.Acknowledge(ctx, id, alertID); err != nil {
			h.log.Warn("acknowledge reply failed", zap.String("conn_id", id), zap.Error(err))
			return
		}
	}
}

func (h *WSHandler) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// ParseAlertID accepts an alert id sent as a JSON number or a numeric string.
func ParseAlertID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := strconv.ParseInt(n.String(), 10, 64); err == nil && id > 0 {
			return id, true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
