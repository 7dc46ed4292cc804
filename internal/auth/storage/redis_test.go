package storage

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStorage(cnst.RedisClusterTypeSingle, mr.Addr(), "", "", "", 0, "tb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStorage(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, _ := newTestRedisStorage(t)
		return s
	})
}

func TestRedisStorage_KeysShareHashTag(t *testing.T) {
	s, mr := newTestRedisStorage(t)
	at, rt := newPair(7, "app", base)
	require.NoError(t, s.SaveTokenPair(context.Background(), at, rt))

	for _, k := range mr.Keys() {
		assert.Regexp(t, `^\{tb\}:`, k)
	}
	assert.True(t, mr.Exists("{tb}:at_token:"+at.Token))
	assert.True(t, mr.Exists("{tb}:fam_rt:7:app"))
}

func TestNewRedisStorage_ConnectionFailure(t *testing.T) {
	_, err := NewRedisStorage(cnst.RedisClusterTypeSingle, "127.0.0.1:1", "", "", "", 0, "")
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
