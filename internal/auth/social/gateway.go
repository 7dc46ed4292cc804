package social

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/amoylab/tokenbridge/pkg/trace"
	"github.com/amoylab/tokenbridge/pkg/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxUsernameLength = 30

var usernameCleaner = regexp.MustCompile(`[^A-Za-z0-9._@+-]`)

// userResolver is implemented by backends that map a token straight to a local user
type userResolver interface {
	ResolveUser(ctx context.Context, token string) (*database.User, error)
}

// Gateway holds the closed set of enabled backends and links their identities to
// local users
type Gateway struct {
	logger           *zap.Logger
	users            database.Database
	backends         map[string]Backend
	associateByEmail bool
}

type options struct {
	transport http.RoundTripper
	now       func() time.Time
}

// Option customizes a Gateway
type Option func(*options)

// WithTransport sets the base transport of provider calls
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithNow sets the clock used to check first-party token expiry
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewGateway builds the backend registry from configuration
func NewGateway(logger *zap.Logger, cfg *config.SocialConfig, proprietaryName string, users database.Database, tokens storage.Store, opts ...Option) (*Gateway, error) {
	o := &options{transport: http.DefaultTransport, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(o.transport),
	}
	f := fetcher{client: client}

	g := &Gateway{
		logger:           logger.Named("auth.social"),
		users:            users,
		backends:         make(map[string]Backend),
		associateByEmail: cfg.AssociateByEmail,
	}

	if cfg.Google.Enabled {
		g.register(&googleOAuth2{fetcher: f})
	}
	if cfg.GoogleIdentity.Enabled {
		g.register(&googleIdentity{fetcher: f, clientID: cfg.GoogleIdentity.ClientID})
	}
	if cfg.Facebook.Enabled {
		g.register(&facebook{fetcher: f})
	}
	if cfg.GitHub.Enabled {
		g.register(&github{fetcher: f})
	}
	if cfg.LinkedIn.Enabled {
		g.register(&linkedin{fetcher: f})
	}
	if cfg.OIDC.Enabled {
		if cfg.OIDC.Issuer == "" {
			return nil, fmt.Errorf("oidc backend requires an issuer")
		}
		g.register(newOpenID(cfg.OIDC.Name, cfg.OIDC.Issuer, cfg.OIDC.ClientID, client))
	}
	if cfg.Proprietary.Enabled {
		if tokens == nil {
			return nil, fmt.Errorf("proprietary backend requires a token store")
		}
		g.register(&proprietary{name: proprietaryName, tokens: tokens, users: users, now: o.now})
	}

	g.logger.Info("Social backends registered", zap.Strings("backends", g.Names()))
	return g, nil
}

func (g *Gateway) register(b Backend) {
	g.backends[b.Name()] = b
}

// Backend returns the backend registered under name
func (g *Gateway) Backend(name string) (Backend, error) {
	b, ok := g.backends[name]
	if !ok {
		return nil, ErrUnknownBackend
	}
	return b, nil
}

// Names returns the registered backend names in order
func (g *Gateway) Names() []string {
	names := make([]string, 0, len(g.backends))
	for name := range g.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authenticate verifies token with the named backend and returns the local user.
// A nil user with a nil error means the provider identity could not be used.
func (g *Gateway) Authenticate(ctx context.Context, backend, token string) (*database.User, error) {
	b, err := g.Backend(backend)
	if err != nil {
		return nil, err
	}

	span := trace.Tracer(cnst.TraceGateway).Start(ctx, cnst.SpanSocialUserData).
		WithAttrs(attribute.String(cnst.AttrBackend, backend))
	defer span.End()
	ctx = span.Ctx

	if r, ok := b.(userResolver); ok {
		user, err := r.ResolveUser(ctx, token)
		span.Fail(err, "resolve user")
		return user, err
	}

	id, err := b.UserData(ctx, token)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			span.WithAttrs(attribute.Int(cnst.AttrHTTPStatus, httpErr.Status))
		}
		span.Fail(err, "user data")
		g.logger.Info("Provider rejected token", zap.String("backend", backend), zap.Error(err))
		return nil, err
	}
	if id == nil || id.UID == "" {
		return nil, nil
	}

	var user *database.User
	err = g.users.Transaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = g.link(ctx, b.Name(), id)
		return err
	})
	if err != nil {
		span.Fail(err, "link identity")
		return nil, err
	}
	return user, nil
}

// link finds or creates the user behind id and stores the association
func (g *Gateway) link(ctx context.Context, provider string, id *Identity) (*database.User, error) {
	extraData := "{}"
	if len(id.Extra) > 0 {
		if b, err := json.Marshal(id.Extra); err == nil {
			extraData = string(b)
		}
	}

	sa, err := g.users.GetSocialAuth(ctx, provider, id.UID)
	switch {
	case err == nil:
		user, err := g.users.GetUser(ctx, sa.UserID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if err := g.users.UpdateSocialAuthExtra(ctx, sa.ID, extraData); err != nil {
			return nil, err
		}
		return user, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	var user *database.User
	if g.associateByEmail && id.Email != "" {
		user, err = g.users.GetUserByEmail(ctx, id.Email)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}
	if user == nil {
		if user, err = g.createUser(ctx, provider, id); err != nil {
			return nil, err
		}
	}

	err = g.users.CreateSocialAuth(ctx, &database.SocialAuth{
		UserID:    user.ID,
		Provider:  provider,
		UID:       id.UID,
		ExtraData: extraData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create association: %w", err)
	}
	g.logger.Info("Linked social identity",
		zap.String("backend", provider),
		zap.Uint("user_id", user.ID))
	return user, nil
}

func (g *Gateway) createUser(ctx context.Context, provider string, id *Identity) (*database.User, error) {
	if id.Email != "" {
		if _, err := g.users.GetUserByEmail(ctx, id.Email); err == nil {
			return nil, ErrIdentityConflict
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	username, err := g.freeUsername(ctx, provider, id)
	if err != nil {
		return nil, err
	}

	first, last := id.FirstName, id.LastName
	if first == "" && last == "" {
		first, last = splitName(id.FullName)
	}
	user := &database.User{
		Username:  username,
		Email:     id.Email,
		FirstName: first,
		LastName:  last,
		IsActive:  true,
	}
	if err := g.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (g *Gateway) freeUsername(ctx context.Context, provider string, id *Identity) (string, error) {
	local, _, _ := strings.Cut(id.Email, "@")
	base := usernameCleaner.ReplaceAllString(utils.FirstNonEmpty(id.Username, local, provider+id.UID), "")
	if base == "" {
		base = "user"
	}
	if len(base) > maxUsernameLength {
		base = base[:maxUsernameLength]
	}

	candidate := base
	for range 10 {
		_, err := g.users.GetUserByUsername(ctx, candidate)
		if errors.Is(err, database.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = suffixed(base)
	}
	return "", fmt.Errorf("no free username for %q", base)
}

func suffixed(base string) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	suffix := hex.EncodeToString(buf)
	if len(base)+len(suffix) > maxUsernameLength {
		base = base[:maxUsernameLength-len(suffix)]
	}
	return base + suffix
}
