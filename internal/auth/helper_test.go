package auth

import (
	"context"
	"testing"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/social"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "s3cret"

type fakeGateway struct {
	calls    int
	user     *database.User
	err      error
	backends []string
}

func (f *fakeGateway) Authenticate(_ context.Context, backend, _ string) (*database.User, error) {
	f.calls++
	if _, err := f.Backend(backend); err != nil {
		return nil, err
	}
	return f.user, f.err
}

func (f *fakeGateway) Backend(name string) (social.Backend, error) {
	for _, b := range f.backends {
		if b == name {
			return nil, nil
		}
	}
	return nil, social.ErrUnknownBackend
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	server  *Server
	store   storage.Store
	users   database.Database
	gateway *fakeGateway
	clock   *testClock
	user    *database.User
	conf    *storage.Application
	public  *storage.Application
}

func newTestEnv(t *testing.T, mutate ...func(*config.TokenBridgeConfig)) *testEnv {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}

	users, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })

	ctx := context.Background()
	user := &database.User{Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell", IsActive: true}
	require.NoError(t, users.CreateUser(ctx, user))

	store := storage.NewMemoryStorage()
	hash, err := bcrypt.GenerateFromPassword([]byte(testSecret), bcrypt.MinCost)
	require.NoError(t, err)
	conf := &storage.Application{ClientID: "conf", ClientSecret: string(hash), ClientType: "confidential",
		GrantTypes: []string{"convert_token", "refresh_token"}, Scope: "read write"}
	public := &storage.Application{ClientID: "pub", ClientType: "public",
		GrantTypes: []string{"convert_token", "refresh_token"}, Scope: "read write"}
	require.NoError(t, store.CreateApplication(ctx, conf))
	require.NoError(t, store.CreateApplication(ctx, public))

	gw := &fakeGateway{user: user, backends: []string{"github", "google-oauth2"}}
	s, err := NewServer(zap.NewNop(), &cfg, store, users, gw, nil)
	require.NoError(t, err)
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s.NowFunc = clock.Now

	return &testEnv{server: s, store: store, users: users, gateway: gw, clock: clock, user: user, conf: conf, public: public}
}

func convertRequest(clientID string) *TokenRequest {
	return &TokenRequest{GrantType: "convert_token", ClientID: clientID, Backend: "github", Token: "provider-token"}
}

func refreshRequest(clientID, refresh string) *TokenRequest {
	return &TokenRequest{GrantType: "refresh_token", ClientID: clientID, RefreshToken: refresh}
}
