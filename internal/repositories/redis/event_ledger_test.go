package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventLedgerRequiresClient(t *testing.T) {
	_, err := NewEventLedger(nil)
	require.Error(t, err)
}

func TestEventLedgerRejectsEmptyID(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	ledger, err := NewEventLedger(client)
	require.NoError(t, err)

	_, err = ledger.MarkProcessed(context.Background(), "  ", time.Minute)
	require.Error(t, err)
}

func TestEventLedgerClassifiesConnectionFailure(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	ledger, err := NewEventLedger(client)
	require.NoError(t, err)

	_, err = ledger.MarkProcessed(context.Background(), "evt_1", time.Minute)
	require.Error(t, err)

	var classified interface{ IsUnavailable() bool }
	require.True(t, errors.As(err, &classified))
	assert.True(t, classified.IsUnavailable())
}

func TestEventLedgerReleaseIgnoresEmptyID(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	ledger, err := NewEventLedger(client)
	require.NoError(t, err)

	assert.NoError(t, ledger.Release(context.Background(), " "))
	assert.Error(t, ledger.Release(context.Background(), "evt_1"))
}
