package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-box-booking/internal/config"
)

func TestConnectAndPing(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := Connect(context.Background(), config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	probe := Ping(rdb)
	assert.NoError(t, probe(context.Background()))

	mr.Close()
	assert.Error(t, probe(context.Background()))
}

func TestConnectFailsFast(t *testing.T) {
	_, err := Connect(context.Background(), config.Config{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), config.Config{RedisAddr: addr})
	assert.ErrorContains(t, err, "ping redis")
}

func TestOptionsReadTimeoutCoversLockWait(t *testing.T) {
	opts := Options(config.Config{RedisAddr: "localhost:6379", RedisUsername: "u", RedisPassword: "p", LockWait: 5 * time.Second})
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, 5*time.Second, opts.ReadTimeout)

	assert.Equal(t, 2*time.Second, Options(config.Config{LockWait: time.Second}).ReadTimeout)
}
