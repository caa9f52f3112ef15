package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RelaysMatchChangesToRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repositories.NewMemoryMatchRepository(nil)
	require.NoError(t, store.Create(ctx, &models.MatchRecord{
		Code: "12345678", Phase: models.PhaseWaiting, GameType: models.GameReaction,
		StakeAmount: 100, StakeCurrency: "COIN", InitiatorID: "alice", SettlementState: models.SettlementNone,
	}))

	hub := NewHub(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	client := NewClient(hub, nil, "12345678")
	other := NewClient(hub, nil, "87654321")
	require.True(t, hub.Join(client))
	require.True(t, hub.Join(other))
	require.Eventually(t, func() bool { return hub.RoomSize("12345678") == 1 }, time.Second, 5*time.Millisecond)

	var msg Message
	stake := int64(100)
	require.Eventually(t, func() bool {
		// Подписка комнаты создается асинхронно: пишем, пока не дойдет.
		stake++
		_, err := store.Update(ctx, "12345678", repositories.MatchUpdate{
			Set: map[repositories.MatchField]any{repositories.FieldStakeAmount: stake},
		})
		if err != nil {
			return false
		}
		select {
		case raw := <-client.Send:
			return json.Unmarshal(raw, &msg) == nil
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, MessageMatchUpdated, msg.Type)
	assert.Equal(t, "12345678", msg.RoomID)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "12345678", payload["code"])

	select {
	case <-other.Send:
		t.Fatal("message leaked into another room")
	default:
	}

	hub.leave(client)
	require.Eventually(t, func() bool { return hub.RoomSize("12345678") == 0 }, time.Second, 5*time.Millisecond)
	for range client.Send {
		// дочитываем очередь до закрытия канала
	}

	cancel()
	require.Eventually(t, func() bool { return !hub.Join(NewClient(hub, nil, "12345678")) }, time.Second, 5*time.Millisecond)
}

func TestClient_OfferKeepsNewest(t *testing.T) {
	client := NewClient(nil, nil, "room")
	for i := 0; i < sendBuffer+5; i++ {
		require.NoError(t, client.SendMessage(Message{Type: MessageMatchUpdated, Payload: i}))
	}
	assert.Len(t, client.Send, sendBuffer)

	var last Message
	for len(client.Send) > 0 {
		require.NoError(t, json.Unmarshal(<-client.Send, &last))
	}
	assert.Equal(t, float64(sendBuffer+4), last.Payload)

	client.close()
	client.close()
	require.NoError(t, client.SendMessage(Message{Type: MessageMatchUpdated}))
}

func TestHub_JoinWithSnapshotQueuesBeforeRegistering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repositories.NewMemoryMatchRepository(nil)
	hub := NewHub(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := NewClient(hub, nil, "12345678")

	joined := make(chan bool, 1)
	go func() {
		ok, err := hub.JoinWithSnapshot(client, Message{Type: MessageMatchUpdated, Payload: "snapshot", RoomID: "12345678"})
		assert.NoError(t, err)
		joined <- ok
	}()

	// Хаб еще не запущен: снимок уже в очереди, клиент в комнату не попал.
	require.Eventually(t, func() bool { return len(client.Send) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize("12345678"))

	go hub.Run(ctx)
	require.True(t, <-joined)
	hub.BroadcastToRoom("12345678", Message{Type: MessageMatchUpdated, Payload: "newer", RoomID: "12345678"})

	var first, second Message
	require.NoError(t, json.Unmarshal(<-client.Send, &first))
	require.NoError(t, json.Unmarshal(<-client.Send, &second))
	assert.Equal(t, "snapshot", first.Payload)
	assert.Equal(t, "newer", second.Payload)
}
