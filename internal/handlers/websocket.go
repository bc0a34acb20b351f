package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
	"cases-miniapp-backend/internal/telegram"
)

const (
	MessageBalance = "balance"
	MessagePing    = "ping"
	MessagePong    = "pong"

	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 512
	sendQueueLen    = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type string `json:"type"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan interface{}
}

// WebSocketHub pushes balance changes to the connections of each user. It
// implements services.Broadcaster.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *zap.Logger
}

func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
}

func (hub *WebSocketHub) register(cl *client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conns, ok := hub.clients[cl.userID]
	if !ok {
		conns = make(map[*client]struct{})
		hub.clients[cl.userID] = conns
	}
	conns[cl] = struct{}{}
}

func (hub *WebSocketHub) unregister(cl *client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if conns, ok := hub.clients[cl.userID]; ok {
		delete(conns, cl)
		if len(conns) == 0 {
			delete(hub.clients, cl.userID)
		}
	}
}

// Subscribers reports how many connections userID has open.
func (hub *WebSocketHub) Subscribers(userID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients[userID])
}

// BroadcastBalance never blocks: a client whose queue is full misses the
// update.
func (hub *WebSocketHub) BroadcastBalance(userID string, balance int64) {
	msg := models.BalanceUpdate{Type: MessageBalance, UserID: userID, Balance: balance}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for cl := range hub.clients[userID] {
		select {
		case cl.send <- msg:
		default:
			hub.logger.Debug("balance push dropped", zap.String("user_id", userID))
		}
	}
}

type WebSocketHandler struct {
	opens    *services.OpenService
	hub      *WebSocketHub
	pongWait time.Duration
	logger   *zap.Logger
}

// NewWebSocketHandler drops connections that answer no ping for pongWait.
// Pings go out every nine tenths of pongWait.
func NewWebSocketHandler(opens *services.OpenService, hub *WebSocketHub, pongWait time.Duration, logger *zap.Logger) *WebSocketHandler {
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return &WebSocketHandler{opens: opens, hub: hub, pongWait: pongWait, logger: logger}
}

// HandleWebSocket subscribes a verified user to balance pushes. The first
// message is the current balance.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	req := readClientRequest(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeWait)
	res, err := h.opens.Balance(ctx, req.InitData)
	cancel()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse(models.ErrCodeLedgerUnavailable))
		return
	}
	if !res.Validated || res.UserID == telegram.GuestID {
		c.JSON(http.StatusUnauthorized, errorResponse(models.ErrCodeUnauthorized))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		userID: res.UserID,
		conn:   conn,
		send:   make(chan interface{}, sendQueueLen),
	}
	cl.send <- models.BalanceUpdate{Type: MessageBalance, UserID: res.UserID, Balance: res.Balance}

	h.hub.register(cl)
	done := make(chan struct{})
	go h.writeLoop(cl, done)

	defer func() {
		h.hub.unregister(cl)
		close(done)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", zap.String("user_id", cl.userID), zap.Error(err))
			}
			return
		}

		if msg.Type == MessagePing {
			select {
			case cl.send <- Message{Type: MessagePong}:
			default:
			}
		}
	}
}

func (h *WebSocketHandler) writeLoop(cl *client, done <-chan struct{}) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(msg); err != nil {
				cl.conn.Close()
				return
			}
		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cl.conn.Close()
				return
			}
		}
	}
}
