package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shareEventsChannel = "share:events"

// WSClient is one live /ws/inbox connection.
type WSClient struct {
	UserID int64
	ConnID string
	Conn   *websocket.Conn
	mu     sync.Mutex
}

// Hub tracks live connections per user. With redis attached, hints go through
// the share:events channel so that every instance delivers to its own
// connections; otherwise they are delivered locally.
type Hub struct {
	mu        sync.RWMutex
	clients   map[int64]map[string]*WSClient
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
	log       *zap.Logger
}

type hubEvent struct {
	Kind    string          `json:"kind"`
	UserID  int64           `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: map[int64]map[string]*WSClient{}, log: log}
}

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

func (h *Hub) StartRedisSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, shareEventsChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopRedisSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = map[string]*WSClient{}
	}
	h.clients[client.UserID][client.ConnID] = client
}

func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client.ConnID)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	_ = client.Conn.Close()
}

// ConnectionCount returns the number of local connections for userID.
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) NotifyUser(userID int64, payload any) {
	if h.publish(userID, payload) {
		return
	}
	n := h.notifyUserLocal(userID, payload)
	h.log.Debug("hub local dispatch", zap.Int64("user_id", userID), zap.Int("fanout_count", n))
}

func (h *Hub) notifyUserLocal(userID int64, payload any) int {
	h.mu.RLock()
	conns := make([]*WSClient, 0, len(h.clients[userID]))
	for _, client := range h.clients[userID] {
		conns = append(conns, client)
	}
	h.mu.RUnlock()

	for _, client := range conns {
		client.WriteJSON(payload)
	}
	return len(conns)
}

func (h *Hub) publish(userID int64, payload any) bool {
	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return false
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	b, err := json.Marshal(hubEvent{Kind: "notify_user", UserID: userID, Payload: payloadRaw})
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Publish(ctx, shareEventsChannel, b).Err(); err != nil {
		h.log.Warn("hub publish failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		if event.Kind != "notify_user" || len(event.Payload) == 0 {
			continue
		}
		var payload any
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			continue
		}
		n := h.notifyUserLocal(event.UserID, payload)
		h.log.Debug("hub consumed event", zap.Int64("user_id", event.UserID), zap.Int("fanout_count", n))
	}
}

func (c *WSClient) WriteJSON(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.Conn.WriteJSON(payload)
}
