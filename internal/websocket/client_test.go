package chatws

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-f.frames:
		return 1, frame, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) push(frame string) { f.frames <- []byte(frame) }

type stubBackend struct {
	mu         sync.Mutex
	sendResult *services.SendResult
	sendErr    error
	readErr    error
	sent       []string
}

func (s *stubBackend) Send(_ context.Context, _ services.Actor, _ int64, content string) (*services.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, content)
	return s.sendResult, s.sendErr
}

func (s *stubBackend) AuthorizeRead(_ context.Context, _ services.Actor, chatID int64) (*models.ChatSession, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return &models.ChatSession{ID: chatID}, nil
}

func startClient(t *testing.T, hub *Hub, userID int64, role models.Role, backend ChatBackend) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	client := connect(hub, userID, role, conn)
	go client.ReadPump(context.Background(), backend)
	t.Cleanup(func() { _ = conn.Close() })
	return client, conn
}

// flush waits until every frame pushed before it has been handled.
func flush(t *testing.T, client *Client, conn *fakeConn) {
	t.Helper()
	conn.push(`{"type":"ping","chat_id":1}`)
	event := receive(t, client)
	require.Equal(t, services.EventError, event.Type)
	require.Equal(t, "unsupported message type", event.Error)
}

func TestClientSendMessageEchoesMessageAndAIReply(t *testing.T) {
	hub := startHub(t)
	backend := &stubBackend{sendResult: &services.SendResult{
		Message: &models.Message{ID: 1, ChatID: 4, SenderRole: models.SenderTrainee, Content: "squats?"},
		Reply:   &models.Message{ID: 2, ChatID: 4, SenderRole: models.SenderAI, Content: "Keep your back straight."},
	}}
	client, conn := startClient(t, hub, 1, models.RoleTrainee, backend)

	conn.push(`{"type":"send_message","chat_id":4,"content":"squats?"}`)

	first := receive(t, client)
	second := receive(t, client)
	assert.Equal(t, services.EventNewMessage, first.Type)
	assert.Equal(t, "squats?", first.Message.Content)
	assert.Equal(t, models.SenderAI, second.Message.SenderRole)
	assert.Equal(t, []string{"squats?"}, backend.sent)
}

func TestClientSendMessageReportsServiceErrors(t *testing.T) {
	hub := startHub(t)

	backend := &stubBackend{sendErr: services.ErrForbidden}
	client, conn := startClient(t, hub, 1, models.RoleTrainee, backend)
	conn.push(`{"type":"send_message","chat_id":4,"content":"hello"}`)
	event := receive(t, client)
	assert.Equal(t, services.EventError, event.Type)
	assert.Equal(t, int64(4), event.ChatID)
	assert.Equal(t, "forbidden", event.Error)

	internal := &stubBackend{sendErr: errors.New("connection reset by peer")}
	client2, conn2 := startClient(t, hub, 2, models.RoleTrainee, internal)
	conn2.push(`{"type":"send_message","chat_id":4,"content":"hello"}`)
	event = receive(t, client2)
	assert.Equal(t, "internal server error", event.Error)
}

func TestClientRejectsMalformedFrames(t *testing.T) {
	hub := startHub(t)
	client, conn := startClient(t, hub, 1, models.RoleTrainee, &stubBackend{})

	conn.push(`not json`)
	assert.Equal(t, "invalid message payload", receive(t, client).Error)

	conn.push(`{"type":"send_message","content":"x"}`)
	assert.Equal(t, "chat_id is required", receive(t, client).Error)
}

func TestClientTypingReachesJoinedCounterpartOnly(t *testing.T) {
	hub := startHub(t)
	backend := &stubBackend{}
	trainee, traineeConn := startClient(t, hub, 1, models.RoleTrainee, backend)
	trainer, trainerConn := startClient(t, hub, 2, models.RoleTrainer, backend)

	trainerConn.push(`{"type":"join_chat","chat_id":12}`)
	flush(t, trainer, trainerConn)
	traineeConn.push(`{"type":"join_chat","chat_id":12}`)
	traineeConn.push(`{"type":"typing","chat_id":12,"is_typing":true}`)

	event := receive(t, trainer)
	assert.Equal(t, services.EventTyping, event.Type)
	assert.Equal(t, int64(12), event.ChatID)
	assert.Equal(t, int64(1), event.UserID)
	require.NotNil(t, event.IsTyping)
	assert.True(t, *event.IsTyping)
	assertSilent(t, trainee)

	trainerConn.push(`{"type":"leave_chat","chat_id":12}`)
	flush(t, trainer, trainerConn)
	traineeConn.push(`{"type":"typing","chat_id":12,"is_typing":false}`)
	assertSilent(t, trainer)
}

func TestClientTypingRequiresJoin(t *testing.T) {
	hub := startHub(t)
	client, conn := startClient(t, hub, 1, models.RoleTrainee, &stubBackend{})

	conn.push(`{"type":"typing","chat_id":12,"is_typing":true}`)
	event := receive(t, client)
	assert.Equal(t, services.EventError, event.Type)
	assert.Equal(t, "join the chat before sending typing events", event.Error)
}

func TestClientJoinRequiresReadAccess(t *testing.T) {
	hub := startHub(t)
	backend := &stubBackend{readErr: services.ErrNotFound}
	client, conn := startClient(t, hub, 3, models.RoleTrainee, backend)

	conn.push(`{"type":"join_chat","chat_id":12}`)
	assert.Equal(t, "not found", receive(t, client).Error)

	conn.push(`{"type":"typing","chat_id":12,"is_typing":true}`)
	assert.Equal(t, "join the chat before sending typing events", receive(t, client).Error)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	client, conn := startClient(t, hub, 1, models.RoleTrainee, &stubBackend{})

	require.NoError(t, conn.Close())

	for range client.send {
	}
}
