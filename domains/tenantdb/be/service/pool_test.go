package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type nopGateway struct{ id int }

func (nopGateway) Probe(context.Context, string) error   { return nil }
func (nopGateway) ExecDDL(context.Context, string) error { return nil }

func countingFactory(counter *int) GatewayFactory {
	return func(string, string) (Gateway, error) {
		*counter++
		return nopGateway{id: *counter}, nil
	}
}

func TestClientPoolReuse(t *testing.T) {
	built := 0
	pool := NewClientPool(countingFactory(&built), 10, time.Minute)
	tenantID := uuid.New()

	first, err := pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)
	second, err := pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, built)
}

func TestClientPoolRebuildsOnCredentialChange(t *testing.T) {
	built := 0
	pool := NewClientPool(countingFactory(&built), 10, time.Minute)
	tenantID := uuid.New()

	_, err := pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)
	_, err = pool.Get(tenantID, "https://acme.example.com", "rotated", false)
	require.NoError(t, err)
	require.Equal(t, 2, built)

	// Privileged and public clients live at separate slots.
	_, err = pool.Get(tenantID, "https://acme.example.com", "rotated", true)
	require.NoError(t, err)
	require.Equal(t, 3, built)
	require.Equal(t, 2, pool.Len())
}

func TestClientPoolInvalidate(t *testing.T) {
	built := 0
	pool := NewClientPool(countingFactory(&built), 10, time.Minute)
	tenantID := uuid.New()

	_, err := pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)
	_, err = pool.Get(tenantID, "https://acme.example.com", "svc", true)
	require.NoError(t, err)

	pool.Invalidate(tenantID)
	require.Equal(t, 0, pool.Len())

	_, err = pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)
	require.Equal(t, 3, built)
}

func TestClientPoolTTLExpiry(t *testing.T) {
	built := 0
	pool := NewClientPool(countingFactory(&built), 10, time.Minute)
	clock := time.Now()
	pool.now = func() time.Time { return clock }
	tenantID := uuid.New()

	_, err := pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	require.Equal(t, 1, pool.PurgeExpired())
	require.Equal(t, 0, pool.Len())

	_, err = pool.Get(tenantID, "https://acme.example.com", "key", false)
	require.NoError(t, err)
	require.Equal(t, 2, built)
}

func TestClientPoolEvictsOldestAtCapacity(t *testing.T) {
	built := 0
	pool := NewClientPool(countingFactory(&built), 2, time.Minute)
	clock := time.Now()
	pool.now = func() time.Time { return clock }

	oldest := uuid.New()
	_, err := pool.Get(oldest, "https://a.example.com", "key", false)
	require.NoError(t, err)

	clock = clock.Add(time.Second)
	_, err = pool.Get(uuid.New(), "https://b.example.com", "key", false)
	require.NoError(t, err)

	clock = clock.Add(time.Second)
	_, err = pool.Get(uuid.New(), "https://c.example.com", "key", false)
	require.NoError(t, err)

	require.Equal(t, 2, pool.Len())

	// The least recently used entry was dropped; fetching it again rebuilds.
	_, err = pool.Get(oldest, "https://a.example.com", "key", false)
	require.NoError(t, err)
	require.Equal(t, 4, built)
}
