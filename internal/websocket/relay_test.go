package chatws

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelayedHub(t *testing.T, ctx context.Context, addr string) (*Hub, *RedisRelay) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(quietLogger())
	relay := NewRedisRelay(client, "", quietLogger())
	hub.UseRelay(relay)
	go hub.Run(ctx)
	go func() { _ = relay.Run(ctx, hub) }()

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
	return hub, relay
}

func TestRedisRelayFansOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA, relayA := startRelayedHub(t, ctx, mr.Addr())
	hubB, relayB := startRelayedHub(t, ctx, mr.Addr())
	assert.NotEqual(t, relayA.Origin(), relayB.Origin())

	local := connect(hubA, 42, models.RoleTrainer, nil)
	remote := connect(hubB, 42, models.RoleTrainer, nil)

	msg := &models.Message{ID: 5, ChatID: 8, SenderRole: models.SenderTrainee, Content: "paid, ready"}
	hubA.SendTo(42, services.RealtimeEvent{Type: services.EventNewMessage, ChatID: 8, Message: msg})

	event := receive(t, remote)
	assert.Equal(t, services.EventNewMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "paid, ready", event.Message.Content)

	// The origin hub delivers once and drops its own echo.
	receive(t, local)
	assertSilent(t, local)
}

func TestRedisRelayCarriesChatBroadcasts(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA, _ := startRelayedHub(t, ctx, mr.Addr())
	hubB, _ := startRelayedHub(t, ctx, mr.Addr())

	typist := connect(hubA, 1, models.RoleTrainee, nil)
	watcher := connect(hubB, 2, models.RoleTrainer, nil)
	hubA.Join(typist, 30)
	hubB.Join(watcher, 30)

	typing := true
	hubA.BroadcastToChat(30, services.RealtimeEvent{Type: services.EventTyping, ChatID: 30, UserID: 1, IsTyping: &typing}, 1)

	event := receive(t, watcher)
	assert.Equal(t, services.EventTyping, event.Type)
	assert.Equal(t, int64(1), event.UserID)
	assertSilent(t, typist)
}
