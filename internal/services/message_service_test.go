package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToPendingTrainerChatIsForbidden(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, _ := env.pendingChat(t)

	for _, actor := range []Actor{env.trainee, env.trainer, env.trainee2, env.admin} {
		_, err := env.messages.Send(ctx, actor, chat.ID, "hello")
		assert.Equal(t, KindForbidden, KindOf(err), "actor %+v", actor)
	}
}

func TestSendValidatesContentAndChat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.messages.Send(ctx, env.trainee, 1, "   ")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = env.messages.Send(ctx, env.trainee, 0, "hi")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = env.messages.Send(ctx, env.trainee, 999, "hi")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestSendLimitsContentByCharacters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, _ := env.activeChat(t)

	result, err := env.messages.Send(ctx, env.trainee, chat.ID, strings.Repeat("é", maxMessageLength))
	require.NoError(t, err)
	assert.Len(t, []rune(result.Message.Content), maxMessageLength)

	_, err = env.messages.Send(ctx, env.trainee, chat.ID, strings.Repeat("é", maxMessageLength+1))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestSendTrainerChatNotifiesCounterpart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, _ := env.activeChat(t)

	result, err := env.messages.Send(ctx, env.trainee, chat.ID, "  Can we adjust my plan?  ")
	require.NoError(t, err)
	assert.Equal(t, "Can we adjust my plan?", result.Message.Content)
	assert.Equal(t, models.SenderTrainee, result.Message.SenderRole)
	assert.Nil(t, result.Reply)

	reply, err := env.messages.Send(ctx, env.trainer, chat.ID, "Sure.")
	require.NoError(t, err)
	assert.Equal(t, models.SenderTrainer, reply.Message.SenderRole)

	require.Len(t, env.notifier.sent, 2)
	assert.Equal(t, env.trainer.ID, env.notifier.sent[0].userID)
	assert.Equal(t, EventNewMessage, env.notifier.sent[0].event.Type)
	assert.Equal(t, chat.ID, env.notifier.sent[0].event.ChatID)
	assert.Equal(t, result.Message.ID, env.notifier.sent[0].event.Message.ID)
	assert.Equal(t, env.trainee.ID, env.notifier.sent[1].userID)

	_, err = env.messages.Send(ctx, env.trainee2, chat.ID, "let me in")
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = env.messages.Send(ctx, env.admin, chat.ID, "moderator here")
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestSendRechecksPaymentOnEveryMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, payment := env.activeChat(t)

	// Force the corrupt combination of an ACTIVE chat without a HELD payment.
	_, err := env.store.Payments().UpdateStatusIfCurrent(ctx, payment.ID,
		models.PaymentStatusHeld, models.PaymentStatusReleased, time.Now())
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, env.trainee, chat.ID, "still there?")
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestSendToCompletedChatIsForbidden(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, payment := env.activeChat(t)
	state, err := env.escrow.Release(ctx, env.admin, payment.ID)
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, env.trainee, state.Chat.ID, "thanks")
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestSendAIChatPersistsReply(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, _, err := env.chats.CreateAIChat(ctx, env.trainee)
	require.NoError(t, err)

	result, err := env.messages.Send(ctx, env.trainee, chat.ID, "How much protein should I eat?")
	require.NoError(t, err)
	require.NotNil(t, result.Reply)
	assert.Equal(t, models.SenderAI, result.Reply.SenderRole)
	assert.Equal(t, "Eat 1.6g of protein per kg of bodyweight.", result.Reply.Content)

	require.Len(t, env.bridge.seen, 2)
	assert.Equal(t, ContextMessage{Role: ContextRoleSystem, Content: DefaultAISystemPrompt}, env.bridge.seen[0])
	assert.Equal(t, ContextMessage{Role: ContextRoleUser, Content: "How much protein should I eat?"}, env.bridge.seen[1])

	messages, total, err := env.messages.ListMessages(ctx, env.trainee, chat.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, models.SenderTrainee, messages[0].SenderRole)
	assert.Equal(t, models.SenderAI, messages[1].SenderRole)
	assert.Empty(t, env.notifier.sent)

	_, err = env.messages.Send(ctx, env.trainee2, chat.ID, "hi")
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestSendAIChatTimeoutUsesFallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	logger, _ := test.NewNullLogger()
	bridge := &stubBridge{block: true}
	service := NewMessageService(env.store, bridge, env.notifier, MessageConfig{AITimeout: 20 * time.Millisecond}, logger)

	chat, _, err := env.chats.CreateAIChat(ctx, env.trainee)
	require.NoError(t, err)

	result, err := service.Send(ctx, env.trainee, chat.ID, "How much protein should I eat?")
	require.NoError(t, err)
	require.NotNil(t, result.Reply)
	assert.Equal(t, AIFallbackReply, result.Reply.Content)

	messages, _, err := service.ListMessages(ctx, env.trainee, chat.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.SenderAI, messages[1].SenderRole)
	assert.Equal(t, AIFallbackReply, messages[1].Content)
}

func TestSendAIChatFallbackOnErrorOrEmptyReply(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, _, err := env.chats.CreateAIChat(ctx, env.trainee)
	require.NoError(t, err)

	env.bridge.err = errors.New("connection refused")
	result, err := env.messages.Send(ctx, env.trainee, chat.ID, "first")
	require.NoError(t, err)
	assert.Equal(t, AIFallbackReply, result.Reply.Content)

	env.bridge.err = nil
	env.bridge.reply = "   "
	result, err = env.messages.Send(ctx, env.trainee, chat.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, AIFallbackReply, result.Reply.Content)
}

func TestSendAIChatBoundsContextWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	logger, _ := test.NewNullLogger()
	bridge := &stubBridge{reply: "ok"}
	service := NewMessageService(env.store, bridge, nil, MessageConfig{ContextWindow: 3, SystemPrompt: "be brief"}, logger)

	chat, _, err := env.chats.CreateAIChat(ctx, env.trainee)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := service.Send(ctx, env.trainee, chat.ID, content)
		require.NoError(t, err)
	}

	// one, ok, two, ok, three: the window keeps the newest three.
	require.Len(t, bridge.seen, 4)
	assert.Equal(t, []ContextMessage{
		{Role: ContextRoleSystem, Content: "be brief"},
		{Role: ContextRoleUser, Content: "two"},
		{Role: ContextRoleAssistant, Content: "ok"},
		{Role: ContextRoleUser, Content: "three"},
	}, bridge.seen)
}

func TestBuildAIContextMapsRoles(t *testing.T) {
	got := BuildAIContext("sys", []models.Message{
		{SenderRole: models.SenderTrainee, Content: "a"},
		{SenderRole: models.SenderAI, Content: "b"},
		{SenderRole: models.SenderTrainer, Content: "c"},
		{SenderRole: models.SenderSystem, Content: "d"},
	})
	assert.Equal(t, []ContextRole{
		ContextRoleSystem, ContextRoleUser, ContextRoleAssistant, ContextRoleSystem, ContextRoleSystem,
	}, []ContextRole{got[0].Role, got[1].Role, got[2].Role, got[3].Role, got[4].Role})
}

func TestListMessagesAuthorization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat, _ := env.activeChat(t)
	for _, content := range []string{"a", "b", "c"} {
		_, err := env.messages.Send(ctx, env.trainee, chat.ID, content)
		require.NoError(t, err)
	}

	page, total, err := env.messages.ListMessages(ctx, env.trainer, chat.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].Content)

	_, _, err = env.messages.ListMessages(ctx, env.admin, chat.ID, 1, 10)
	require.NoError(t, err)

	_, _, err = env.messages.ListMessages(ctx, env.trainee2, chat.ID, 1, 10)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, _, err = env.messages.ListMessages(ctx, env.trainee, 555, 1, 10)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = env.messages.AuthorizeRead(ctx, env.trainer, chat.ID)
	require.NoError(t, err)
}
