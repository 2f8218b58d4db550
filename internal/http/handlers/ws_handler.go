package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/auth"
	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/http/dto"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/projection"
	"github.com/sprout-escrow/backend/internal/services"
)

// Websocket message types
const (
	WSTypeEscrows  = "escrows"
	WSTypeApproval = "approval"
	WSTypeNavigate = "navigate"
	WSTypeError    = "error"
)

const wsWriteTimeout = 10 * time.Second

// EscrowsPayload is one full snapshot of a wallet's escrows with display
// fields computed at send time. It replaces the previous one.
type EscrowsPayload struct {
	Owner string    `json:"owner"`
	At    time.Time `json:"at"`
	*services.Dashboard
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg dto.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type WSHub struct {
	jwtSecret  string
	feed       *projection.Feed
	nav        Navigator
	subscriber events.Subscriber
	log        *zap.Logger
	now        func() time.Time

	mu          sync.RWMutex
	connections map[string][]*wsClient
}

func NewWSHub(jwtSecret string, feed *projection.Feed, nav Navigator, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:   jwtSecret,
		feed:        feed,
		nav:         nav,
		subscriber:  subscriber,
		log:         log,
		now:         time.Now,
		connections: make(map[string][]*wsClient),
	}
}

// Start forwards approval results and navigation changes to the wallets they
// concern. Escrow changes reach clients through their feed subscriptions.
func (h *WSHub) Start(ctx context.Context) error {
	err := h.subscriber.Subscribe(ctx, events.StreamApproval, func(e events.Event) {
		h.SendToWallet(e.Str("wallet"), dto.WSMessage{Type: WSTypeApproval, Payload: e.Payload})
	})
	if err != nil {
		return err
	}
	return h.subscriber.Subscribe(ctx, events.StreamSession, func(e events.Event) {
		// сессия навигации = адрес кошелька
		session := e.Str("session")
		h.SendToWallet(session, dto.WSMessage{Type: WSTypeNavigate, Payload: h.nav.Current(session)})
	})
}

func (h *WSHub) SendToWallet(wallet string, msg dto.WSMessage) {
	if wallet == "" {
		return
	}
	h.mu.RLock()
	clients := append([]*wsClient(nil), h.connections[wallet]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.log.Debug("ws write failed", zap.String("wallet", wallet), zap.Error(err))
		}
	}
}

// Connections returns the number of open sockets of a wallet.
func (h *WSHub) Connections(wallet string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[wallet])
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) register(wallet string, c *wsClient) {
	h.mu.Lock()
	h.connections[wallet] = append(h.connections[wallet], c)
	h.mu.Unlock()
}

func (h *WSHub) unregister(wallet string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.connections[wallet]
	for i, cc := range conns {
		if cc == c {
			h.connections[wallet] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[wallet]) == 0 {
		delete(h.connections, wallet)
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	client := &wsClient{conn: conn}

	// Extract token from query
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = client.send(dto.WSMessage{Type: WSTypeError, Payload: "missing token"})
		conn.Close()
		return
	}
	claims, err := auth.ParseJWT(h.jwtSecret, tokenStr)
	if err != nil {
		_ = client.send(dto.WSMessage{Type: WSTypeError, Payload: "invalid token"})
		conn.Close()
		return
	}
	wallet := claims.Wallet

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.feed.Subscribe(ctx, wallet)
	if err != nil {
		h.log.Warn("ws feed subscribe failed", zap.String("wallet", wallet), zap.Error(err))
		_ = client.send(dto.WSMessage{Type: WSTypeError, Payload: err.Error()})
		conn.Close()
		return
	}

	h.register(wallet, client)
	h.log.Debug("ws connected", zap.String("wallet", wallet), zap.Int("connections", h.Connections(wallet)))
	pushed := make(chan struct{})
	defer func() {
		h.unregister(wallet, client)
		// Close закрывает Updates, после чего pushSnapshots выходит;
		// соединение нельзя отдавать, пока он пишет
		sub.Close()
		<-pushed
		conn.Close()
	}()

	_ = client.send(dto.WSMessage{Type: WSTypeNavigate, Payload: h.nav.Current(wallet)})
	go func() {
		defer close(pushed)
		h.pushSnapshots(client, sub)
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *WSHub) pushSnapshots(client *wsClient, sub *projection.Subscription) {
	for snap := range sub.Updates() {
		if err := client.send(h.escrowsMessage(snap)); err != nil {
			h.log.Debug("ws snapshot write failed", zap.String("wallet", snap.Owner), zap.Error(err))
		}
	}

	var subErr *projection.SubscriptionError
	if errors.As(sub.Err(), &subErr) {
		// клиент переподключится и подпишется заново
		_ = client.send(dto.WSMessage{Type: WSTypeError, Payload: subErr.Error()})
		client.conn.Close()
	}
}

func (h *WSHub) escrowsMessage(snap projection.Snapshot) dto.WSMessage {
	return dto.WSMessage{Type: WSTypeEscrows, Payload: EscrowsPayload{
		Owner:     snap.Owner,
		At:        snap.At,
		Dashboard: services.BuildDashboard(snap.Escrows, models.MillisFromTime(h.now())),
	}}
}

var _ Navigator = (*navigation.Router)(nil)
