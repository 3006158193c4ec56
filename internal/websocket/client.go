package chatws

import (
	"context"
	"encoding/json"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	inboundSendMessage = "send_message"
	inboundJoinChat    = "join_chat"
	inboundLeaveChat   = "leave_chat"
	inboundTyping      = "typing"

	sendBuffer = 32
)

// Conn is the part of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ChatBackend is the message gate the socket talks to.
type ChatBackend interface {
	Send(ctx context.Context, actor services.Actor, chatID int64, content string) (*services.SendResult, error)
	AuthorizeRead(ctx context.Context, actor services.Actor, chatID int64) (*models.ChatSession, error)
}

type Client struct {
	hub   *Hub
	conn  Conn
	actor services.Actor
	send  chan []byte

	// rooms is owned by the hub goroutine.
	rooms map[int64]struct{}
	// joined mirrors rooms for the read pump.
	joined map[int64]struct{}
}

type inboundFrame struct {
	Type     string `json:"type"`
	ChatID   int64  `json:"chat_id"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

func NewClient(hub *Hub, conn Conn, actor services.Actor) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		actor:  actor,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[int64]struct{}),
		joined: make(map[int64]struct{}),
	}
}

func (c *Client) ReadPump(ctx context.Context, backend ChatBackend) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.fail(0, "invalid message payload")
			continue
		}
		c.handle(ctx, backend, frame)
	}
}

func (c *Client) handle(ctx context.Context, backend ChatBackend, frame inboundFrame) {
	if frame.ChatID <= 0 {
		c.fail(0, "chat_id is required")
		return
	}

	switch frame.Type {
	case inboundSendMessage:
		result, err := backend.Send(ctx, c.actor, frame.ChatID, frame.Content)
		if err != nil {
			c.failWith(frame.ChatID, err)
			return
		}
		c.hub.reply(c, services.RealtimeEvent{Type: services.EventNewMessage, ChatID: frame.ChatID, Message: result.Message})
		if result.Reply != nil {
			c.hub.reply(c, services.RealtimeEvent{Type: services.EventNewMessage, ChatID: frame.ChatID, Message: result.Reply})
		}
	case inboundJoinChat:
		if _, err := backend.AuthorizeRead(ctx, c.actor, frame.ChatID); err != nil {
			c.failWith(frame.ChatID, err)
			return
		}
		c.hub.Join(c, frame.ChatID)
		c.joined[frame.ChatID] = struct{}{}
	case inboundLeaveChat:
		c.hub.Leave(c, frame.ChatID)
		delete(c.joined, frame.ChatID)
	case inboundTyping:
		if _, ok := c.joined[frame.ChatID]; !ok {
			c.fail(frame.ChatID, "join the chat before sending typing events")
			return
		}
		typing := frame.IsTyping
		c.hub.BroadcastToChat(frame.ChatID, services.RealtimeEvent{
			Type:     services.EventTyping,
			ChatID:   frame.ChatID,
			UserID:   c.actor.ID,
			IsTyping: &typing,
		}, c.actor.ID)
	default:
		c.fail(frame.ChatID, "unsupported message type")
	}
}

func (c *Client) failWith(chatID int64, err error) {
	if services.KindOf(err) == services.KindInternal {
		c.hub.log.WithFields(logrus.Fields{
			"user_id": c.actor.ID,
			"chat_id": chatID,
			"error":   err,
		}).Error("websocket request failed")
	}
	c.fail(chatID, services.PublicMessage(err))
}

func (c *Client) fail(chatID int64, message string) {
	c.hub.reply(c, services.RealtimeEvent{Type: services.EventError, ChatID: chatID, Error: message})
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
