package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu sync.Mutex
	// prefix defaults to pi_test.
	prefix    string
	createErr error
	refundErr error
	cancelErr error
	statusErr error
	intents   int
	refunded  []string
	cancelled []string
	// unpaid lists intents the gateway reports as not yet succeeded.
	unpaid       map[string]bool
	lastAmount   int64
	lastCurrency string
	lastMetadata map[string]string
}

func (g *stubGateway) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.intents++
	prefix := g.prefix
	if prefix == "" {
		prefix = "pi_test"
	}
	g.lastAmount = amount
	g.lastCurrency = currency
	g.lastMetadata = metadata
	return &PaymentIntent{
		IntentID:     fmt.Sprintf("%s_%d", prefix, g.intents),
		ClientSecret: fmt.Sprintf("%s_%d_secret", prefix, g.intents),
	}, nil
}

func (g *stubGateway) Refund(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunded = append(g.refunded, intentID)
	return nil
}

func (g *stubGateway) CancelIntent(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

func (g *stubGateway) IntentSucceeded(_ context.Context, intentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return false, g.statusErr
	}
	return !g.unpaid[intentID], nil
}

type stubBridge struct {
	reply string
	err   error
	// block waits for the context to expire before returning.
	block bool
	seen  []ContextMessage
}

func (b *stubBridge) Complete(ctx context.Context, messages []ContextMessage) (string, error) {
	b.seen = messages
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return b.reply, b.err
}

type sentEvent struct {
	userID int64
	event  RealtimeEvent
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (n *recordingNotifier) SendTo(userID int64, event RealtimeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEvent{userID: userID, event: event})
}

func (n *recordingNotifier) BroadcastToChat(int64, RealtimeEvent, int64) {}

type testEnv struct {
	store    *repository.MemoryStore
	gateway  *stubGateway
	bridge   *stubBridge
	notifier *recordingNotifier
	chats    *ChatService
	escrow   *EscrowService
	messages *MessageService

	trainee  Actor
	trainee2 Actor
	trainer  Actor
	admin    Actor
}

const testDefaultRate = 19900

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()

	env := &testEnv{
		store:    repository.NewMemoryStore(),
		gateway:  &stubGateway{},
		bridge:   &stubBridge{reply: "Eat 1.6g of protein per kg of bodyweight."},
		notifier: &recordingNotifier{},
	}
	env.chats = NewChatService(env.store, env.gateway, logger)
	env.escrow = NewEscrowService(env.store, env.gateway, EscrowConfig{
		Currency:         "inr",
		DefaultRateMinor: testDefaultRate,
	}, logger)
	env.messages = NewMessageService(env.store, env.bridge, env.notifier, MessageConfig{}, logger)

	env.trainee = env.seedUser(t, "trainee@example.com", models.RoleTrainee)
	env.trainee2 = env.seedUser(t, "trainee2@example.com", models.RoleTrainee)
	env.trainer = env.seedUser(t, "trainer@example.com", models.RoleTrainer)
	env.admin = env.seedUser(t, "admin@example.com", models.RoleAdmin)
	return env
}

func (e *testEnv) seedUser(t *testing.T, email string, role models.Role) Actor {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), user))
	return Actor{ID: user.ID, Role: role}
}

// pendingChat returns a trainer chat with a CREATED payment.
func (e *testEnv) pendingChat(t *testing.T) (*models.ChatSession, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	chat, _, err := e.chats.CreateTrainerChat(ctx, e.trainee, e.trainer.ID)
	require.NoError(t, err)
	checkout, err := e.escrow.CreatePayment(ctx, e.trainee, chat.ID)
	require.NoError(t, err)
	return chat, checkout.Payment
}

// activeChat returns a trainer chat unlocked by a HELD payment.
func (e *testEnv) activeChat(t *testing.T) (*models.ChatSession, *models.Payment) {
	t.Helper()
	chat, _ := e.pendingChat(t)
	state, err := e.escrow.ConfirmHeld(context.Background(), e.trainee, chat.ID)
	require.NoError(t, err)
	return state.Chat, state.Payment
}

// failingStore injects an error into chat status writes made inside a unit of work.
type failingStore struct {
	repository.Store
	chatUpdateErr error
}

func (s *failingStore) Chats() repository.ChatStore {
	return &failingChats{ChatStore: s.Store.Chats(), err: s.chatUpdateErr}
}

func (s *failingStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(&failingStore{Store: tx, chatUpdateErr: s.chatUpdateErr})
	})
}

type failingChats struct {
	repository.ChatStore
	err error
}

func (c *failingChats) UpdateStatusIfCurrent(
	context.Context,
	int64,
	models.ChatStatus,
	models.ChatStatus,
) (*models.ChatSession, error) {
	return nil, c.err
}

var errInjected = errors.New("injected write failure")
