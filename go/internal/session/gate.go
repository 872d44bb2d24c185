package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/boardwalk/go/clients/auth_client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// AuthService is what the gate needs from the token-issuing service.
type AuthService interface {
	Login(ctx context.Context, usernameOrEmail, password string) (*auth_client.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*auth_client.TokenResponse, error)
	Me(ctx context.Context, accessToken string) (*auth_client.Profile, error)
}

// GateConfig holds tuning for the token gate.
type GateConfig struct {
	ExpiryMargin   time.Duration
	RefreshTimeout time.Duration
}

// DefaultGateConfig returns the default gate configuration.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ExpiryMargin:   ExpiryMargin,
		RefreshTimeout: 10 * time.Second,
	}
}

// GuestName is used as display name when no profile can be resolved.
const GuestName = "Guest"

const refreshKey = "refresh"

// Gate owns the current credential and hands out a valid access token on
// demand, refreshing or dropping the session as needed.
type Gate struct {
	auth   AuthService
	store  Store
	clock  clockwork.Clock
	config GateConfig

	mu   sync.Mutex
	cred *Credential
	// epoch advances whenever the session is replaced or dropped outside a
	// refresh, so an exchange that started earlier cannot resurrect it.
	epoch uint64

	// persistMu orders store writes with the in-memory change they mirror.
	persistMu sync.Mutex

	// Overlapping Refreshed calls share one exchange.
	group singleflight.Group
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithClock overrides the clock used for expiry checks.
func WithClock(clock clockwork.Clock) GateOption {
	return func(g *Gate) { g.clock = clock }
}

// WithGateConfig overrides the default gate configuration.
func WithGateConfig(config GateConfig) GateOption {
	return func(g *Gate) { g.config = config }
}

// NewGate creates a gate with no credential loaded.
func NewGate(auth AuthService, store Store, opts ...GateOption) *Gate {
	g := &Gate{
		auth:   auth,
		store:  store,
		clock:  clockwork.NewRealClock(),
		config: DefaultGateConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Restore loads the persisted pair, if any, into memory.
func (g *Gate) Restore(ctx context.Context) error {
	pair, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if pair == nil {
		return nil
	}

	cred := ParseCredential(pair.AccessToken, pair.RefreshToken)
	g.mu.Lock()
	g.cred = cred
	g.epoch++
	g.mu.Unlock()

	log.Debug().
		Str("subject", cred.Subject).
		Bool("expired", cred.Expired(g.clock.Now(), g.config.ExpiryMargin)).
		Msg("session restored")
	return nil
}

// CurrentCredential returns the stored credential without side effects.
func (g *Gate) CurrentCredential() *Credential {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cred
}

// Login exchanges user credentials for a token pair and adopts it.
func (g *Gate) Login(ctx context.Context, usernameOrEmail, password string) (*Credential, error) {
	resp, err := g.auth.Login(ctx, usernameOrEmail, password)
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return g.Adopt(ctx, resp.Token, resp.RefreshToken), nil
}

// Adopt stores a token pair obtained elsewhere (signup, a pasted token).
// An empty refresh token keeps the one already held.
func (g *Gate) Adopt(ctx context.Context, accessToken, refreshToken string) *Credential {
	g.persistMu.Lock()
	defer g.persistMu.Unlock()

	g.mu.Lock()
	if refreshToken == "" && g.cred != nil {
		refreshToken = g.cred.RefreshToken
	}
	cred := ParseCredential(accessToken, refreshToken)
	g.cred = cred
	g.epoch++
	g.mu.Unlock()

	if err := g.store.Save(ctx, cred.pair()); err != nil {
		log.Error().Err(err).Msg("failed to persist session")
	}
	return cred
}

// Logout drops the session from memory and from the store.
func (g *Gate) Logout(ctx context.Context) {
	g.persistMu.Lock()
	defer g.persistMu.Unlock()
	g.dropLocked(ctx)
}

// Refreshed returns a credential that is valid for at least the expiry
// margin. It returns (nil, nil) when there is no session at all, and
// (nil, err) wrapping ErrSessionExpired when the session had to be dropped.
// Callers proceed anonymously in both cases.
func (g *Gate) Refreshed(ctx context.Context) (*Credential, error) {
	cred := g.CurrentCredential()
	if cred == nil {
		return nil, nil
	}
	if !cred.Expired(g.clock.Now(), g.config.ExpiryMargin) {
		return cred, nil
	}

	ch := g.group.DoChan(refreshKey, func() (interface{}, error) {
		return g.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Profile resolves the current user through /api/me. Any failure degrades
// to an anonymous profile.
func (g *Gate) Profile(ctx context.Context) *auth_client.Profile {
	anonymous := &auth_client.Profile{Username: auth_client.AnonymousUsername}

	cred, err := g.Refreshed(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("profile lookup without session")
	}
	if cred == nil {
		return anonymous
	}

	profile, err := g.auth.Me(ctx, cred.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load profile")
		return anonymous
	}
	return profile
}

// DisplayName returns the profile username, or GuestName when anonymous.
func (g *Gate) DisplayName(ctx context.Context) string {
	profile := g.Profile(ctx)
	if profile.Anonymous() {
		return GuestName
	}
	return profile.Username
}

// refresh runs at most once at a time. It re-reads the credential because a
// previous flight may already have replaced it.
func (g *Gate) refresh() (*Credential, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.RefreshTimeout)
	defer cancel()

	g.mu.Lock()
	cur, epoch := g.cred, g.epoch
	g.mu.Unlock()
	if cur == nil {
		return nil, ErrSessionExpired
	}
	if !cur.Expired(g.clock.Now(), g.config.ExpiryMargin) {
		return cur, nil
	}
	if !cur.HasRefreshToken() {
		g.dropIf(ctx, epoch)
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
	}

	resp, err := g.auth.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		g.dropIf(ctx, epoch)
		return nil, fmt.Errorf("%w: failed to refresh: %w", ErrSessionExpired, err)
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = cur.RefreshToken
	}
	next := ParseCredential(resp.Token, refreshToken)
	if next.Expired(g.clock.Now(), g.config.ExpiryMargin) {
		g.dropIf(ctx, epoch)
		return nil, fmt.Errorf("%w: refreshed token is already expired", ErrSessionExpired)
	}

	g.persistMu.Lock()
	defer g.persistMu.Unlock()

	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		log.Info().Msg("discarding refresh for a replaced session")
		return nil, fmt.Errorf("%w: session changed during refresh", ErrSessionExpired)
	}
	g.cred = next
	g.mu.Unlock()

	if err := g.store.Save(ctx, next.pair()); err != nil {
		log.Error().Err(err).Msg("failed to persist refreshed session")
	}

	log.Info().Str("subject", next.Subject).Time("expires_at", *next.ExpiresAt).Msg("session refreshed")
	return next, nil
}

// dropIf drops the session only if it is still the one read at epoch.
func (g *Gate) dropIf(ctx context.Context, epoch uint64) {
	g.persistMu.Lock()
	defer g.persistMu.Unlock()

	g.mu.Lock()
	current := g.epoch == epoch
	g.mu.Unlock()
	if current {
		g.dropLocked(ctx)
	}
}

// dropLocked requires persistMu.
func (g *Gate) dropLocked(ctx context.Context) {
	g.mu.Lock()
	g.cred = nil
	g.epoch++
	g.mu.Unlock()

	if err := g.store.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear stored session")
	}
	log.Info().Msg("session dropped")
}
