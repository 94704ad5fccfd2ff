package suppression

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreHistoryMissingKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectGet("suppress:alice:c1:stop_loss").RedisNil()

	store := NewRedisStore(client)
	history, err := store.History(context.Background(), "alice:c1:stop_loss")
	require.NoError(t, err)
	require.Empty(t, history)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreHistoryParses(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	payload, err := json.Marshal([]string{now.Format(time.RFC3339), "garbage"})
	require.NoError(t, err)

	client, mock := redismock.NewClientMock()
	mock.ExpectGet("suppress:alice:c1:stop_loss").SetVal(string(payload))

	store := NewRedisStore(client)
	history, err := store.History(context.Background(), "alice:c1:stop_loss")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreAppendPrunesAndSetsTTL(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	stale := now.Add(-25 * time.Hour)
	existing, err := json.Marshal([]string{stale.Format(time.RFC3339)})
	require.NoError(t, err)

	expected, err := json.Marshal([]string{now.Format(time.RFC3339)})
	require.NoError(t, err)

	client, mock := redismock.NewClientMock()
	mock.ExpectGet("suppress:alice:c1:stop_loss").SetVal(string(existing))
	mock.ExpectSet("suppress:alice:c1:stop_loss", expected, 24*time.Hour).SetVal("OK")

	store := NewRedisStore(client)
	require.NoError(t, store.Append(context.Background(), "alice:c1:stop_loss", now, 24*time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreCorruptValueResets(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectGet("suppress:k").SetVal("{not json")

	store := NewRedisStore(client)
	history, err := store.History(context.Background(), "k")
	require.NoError(t, err)
	require.Empty(t, history)
}
