package chatws

import (
	"context"
	"encoding/json"

	"github.com/kartikrastogi18/FitConnect/internal/metrics"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/sirupsen/logrus"
)

// Envelope addresses an event to a user channel (UserID) or a chat channel
// (ChatID). Origin identifies the hub that produced it when relayed.
type Envelope struct {
	Origin       string                 `json:"origin,omitempty"`
	UserID       int64                  `json:"user_id,omitempty"`
	ChatID       int64                  `json:"chat_id,omitempty"`
	ExceptUserID int64                  `json:"except_user_id,omitempty"`
	Event        services.RealtimeEvent `json:"event"`
}

// Relay forwards envelopes to hubs running in other processes. Publish must
// not block.
type Relay interface {
	Publish(env Envelope)
}

type membership struct {
	client *Client
	chatID int64
	join   bool
}

type directFrame struct {
	client  *Client
	payload []byte
}

// Hub owns every live connection. All maps are touched only by Run.
type Hub struct {
	users map[int64]map[*Client]struct{}
	chats map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	membership chan membership
	outbound   chan Envelope
	direct     chan directFrame
	done       chan struct{}

	relay Relay
	log   logrus.FieldLogger
}

var _ services.Notifier = (*Hub)(nil)

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		users:      make(map[int64]map[*Client]struct{}),
		chats:      make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		membership: make(chan membership),
		outbound:   make(chan Envelope, 256),
		direct:     make(chan directFrame, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// UseRelay must be called before Run.
func (h *Hub) UseRelay(relay Relay) {
	h.relay = relay
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			set, ok := h.users[client.actor.ID]
			if !ok {
				set = make(map[*Client]struct{})
				h.users[client.actor.ID] = set
			}
			set[client] = struct{}{}
			metrics.ActiveWebSocketClients.Inc()
		case client := <-h.unregister:
			h.remove(client)
		case m := <-h.membership:
			h.applyMembership(m)
		case env := <-h.outbound:
			h.deliver(env)
		case frame := <-h.direct:
			if h.registered(frame.client) {
				h.push(frame.client, frame.payload)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join subscribes the client to the chat channel. Callers authorize first.
func (h *Hub) Join(client *Client, chatID int64) {
	select {
	case h.membership <- membership{client: client, chatID: chatID, join: true}:
	case <-h.done:
	}
}

func (h *Hub) Leave(client *Client, chatID int64) {
	select {
	case h.membership <- membership{client: client, chatID: chatID}:
	case <-h.done:
	}
}

func (h *Hub) SendTo(userID int64, event services.RealtimeEvent) {
	h.publish(Envelope{UserID: userID, Event: event})
}

func (h *Hub) BroadcastToChat(chatID int64, event services.RealtimeEvent, exceptUserID int64) {
	h.publish(Envelope{ChatID: chatID, ExceptUserID: exceptUserID, Event: event})
}

// DeliverRemote hands an envelope received from the relay to local clients
// without publishing it again.
func (h *Hub) DeliverRemote(env Envelope) {
	h.enqueue(env)
}

func (h *Hub) publish(env Envelope) {
	h.enqueue(env)
	if h.relay != nil {
		h.relay.Publish(env)
	}
}

func (h *Hub) enqueue(env Envelope) {
	select {
	case h.outbound <- env:
	case <-h.done:
	default:
		h.log.WithFields(logrus.Fields{
			"user_id": env.UserID,
			"chat_id": env.ChatID,
			"event":   env.Event.Type,
		}).Warn("realtime queue full, dropping event")
	}
}

// reply queues an event for one connection only.
func (h *Hub) reply(client *Client, event services.RealtimeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("encode realtime event")
		return
	}
	select {
	case h.direct <- directFrame{client: client, payload: payload}:
	case <-h.done:
	default:
		h.log.WithField("user_id", client.actor.ID).Warn("realtime queue full, dropping reply")
	}
}

func (h *Hub) deliver(env Envelope) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		h.log.WithError(err).Error("encode realtime event")
		return
	}

	if env.UserID != 0 {
		for client := range h.users[env.UserID] {
			h.push(client, payload)
		}
		return
	}
	for client := range h.chats[env.ChatID] {
		if client.actor.ID == env.ExceptUserID {
			continue
		}
		h.push(client, payload)
	}
}

// push drops the connection if its buffer is full.
func (h *Hub) push(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.log.WithField("user_id", client.actor.ID).Warn("websocket client too slow, disconnecting")
		h.remove(client)
	}
}

func (h *Hub) applyMembership(m membership) {
	if !h.registered(m.client) {
		return
	}
	if !m.join {
		delete(m.client.rooms, m.chatID)
		if set, ok := h.chats[m.chatID]; ok {
			delete(set, m.client)
			if len(set) == 0 {
				delete(h.chats, m.chatID)
			}
		}
		return
	}

	set, ok := h.chats[m.chatID]
	if !ok {
		set = make(map[*Client]struct{})
		h.chats[m.chatID] = set
	}
	set[m.client] = struct{}{}
	m.client.rooms[m.chatID] = struct{}{}
}

func (h *Hub) registered(client *Client) bool {
	_, ok := h.users[client.actor.ID][client]
	return ok
}

func (h *Hub) remove(client *Client) {
	set, ok := h.users[client.actor.ID]
	if !ok {
		return
	}
	if _, exists := set[client]; !exists {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.users, client.actor.ID)
	}

	for chatID := range client.rooms {
		if members, ok := h.chats[chatID]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.chats, chatID)
			}
		}
	}
	client.rooms = make(map[int64]struct{})

	close(client.send)
	metrics.ActiveWebSocketClients.Dec()
}

func (h *Hub) closeAll() {
	for _, set := range h.users {
		for client := range set {
			h.remove(client)
		}
	}
}
