package memcache

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPuddlePool_AcquireTracksCreatedConns(t *testing.T) {
	pool, err := NewPuddlePool(func(ctx context.Context) (*Connection, error) {
		client, server := net.Pipe()
		server.Close()
		return NewConnection(client), nil
	}, 2)
	require.NoError(t, err)
	defer pool.Close()

	res, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Value())

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.CreatedConns)
	assert.Equal(t, int32(1), stats.ActiveConns)

	res.Release()
	stats = pool.Stats()
	assert.Equal(t, int32(1), stats.IdleConns)
}

func TestNewPuddlePool_DestroyTracksDestroyedConns(t *testing.T) {
	pool, err := NewPuddlePool(func(ctx context.Context) (*Connection, error) {
		client, server := net.Pipe()
		server.Close()
		return NewConnection(client), nil
	}, 2)
	require.NoError(t, err)
	defer pool.Close()

	res, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	res.Destroy()

	assert.Equal(t, uint64(1), pool.Stats().DestroyedConns)
}

func TestNewPuddlePool_ConstructorErrorPropagates(t *testing.T) {
	wantErr := assert.AnError
	pool, err := NewPuddlePool(func(ctx context.Context) (*Connection, error) {
		return nil, wantErr
	}, 1)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, uint64(0), pool.Stats().CreatedConns)
}
