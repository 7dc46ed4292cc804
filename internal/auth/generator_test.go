package auth

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGenerator(t *testing.T) {
	g, err := NewGenerator(false, "")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for range 100 {
		v, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, v, tokenLength)
		assert.Empty(t, strings.Trim(v, tokenAlphabet))
		assert.False(t, seen[v])
		seen[v] = true
	}
}

func TestJWTGenerator(t *testing.T) {
	_, err := NewGenerator(true, "")
	assert.Error(t, err)

	g, err := NewGenerator(true, "signing-key")
	require.NoError(t, err)
	v, err := g.Generate()
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(v, claims, func(tok *jwt.Token) (any, error) {
		return []byte("signing-key"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	inner, ok := claims["token"].(string)
	require.True(t, ok)
	assert.Len(t, inner, tokenLength)

	_, err = jwt.Parse(v, func(tok *jwt.Token) (any, error) { return []byte("other"), nil })
	assert.Error(t, err)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	done := make(chan struct{})
	go func() {
		defer close(done)
		k.Lock("a")()
	}()

	// another key is not blocked
	k.Lock("b")()

	select {
	case <-done:
		t.Fatal("second holder of the same key did not wait")
	default:
	}
	unlock()
	<-done

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}

func TestParseScope(t *testing.T) {
	assert.Equal(t, []string{"read", "write"}, ParseScope(" write read  write "))
	assert.Nil(t, ParseScope(""))
	assert.True(t, isSubset([]string{"read"}, []string{"read", "write"}))
	assert.False(t, isSubset([]string{"admin"}, []string{"read", "write"}))
}
