package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Options(t *testing.T) {
	rdb := NewClient(ClientOptions{Addr: "redis:6379", Password: "pw", DB: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	opts := rdb.Options()
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
}

func TestPing(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, Ping(context.Background(), rdb))

	mr.Close()
	require.Error(t, Ping(context.Background(), rdb))
}
