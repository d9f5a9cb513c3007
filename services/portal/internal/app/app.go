// Package app holds the portal core: identity lifecycle, token issuance and
// the simulated call flow. HTTP concerns live in the server package.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tonygamingtz/internal/util"
	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/identity"
	"tonygamingtz/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration
	RefreshTTL    time.Duration

	// Injectable for tests.
	Store         store.Store
	Sessions      store.SessionStore
	RefreshTokens store.RefreshTokenStore
}

// App wires storage and session management for the portal.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	refreshTokens store.RefreshTokenStore
	refreshTTL    time.Duration
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for jwt+redis session strategy")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	refreshStore := cfg.RefreshTokens
	if refreshStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for jwt+redis refresh token strategy")
		}
		refreshStore = store.NewRedisRefreshTokenStore(cfg.RedisAddr, cfg.RedisPassword)
	}

	return &App{
		store:         dataStore,
		sessions:      sessionStore,
		refreshTokens: refreshStore,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

// SignUp registers a phone identity. The caller is expected to have passed
// phone verification already. The identity class is derived, never trusted.
func (a *App) SignUp(ctx context.Context, phone, name string) (domain.Identity, string, string, error) {
	phone = strings.TrimSpace(phone)
	name = strings.TrimSpace(name)
	if phone == "" {
		return domain.Identity{}, "", "", ErrPhoneRequired
	}
	if name == "" {
		return domain.Identity{}, "", "", ErrNameRequired
	}
	stripped := identity.StripPhone(phone)
	if len(stripped) < 9 || len(stripped) > 15 {
		return domain.Identity{}, "", "", ErrMalformedPhone
	}
	if identity.IsReservedName(name) && !identity.IsAdminPhone(phone) {
		return domain.Identity{}, "", "", ErrReservedName
	}
	if _, exists, err := a.store.GetIdentityByPhone(ctx, stripped); err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("check phone: %w", err)
	} else if exists {
		return domain.Identity{}, "", "", ErrAlreadyRegistered
	}
	now := time.Now().UTC()
	id := identity.Normalize(domain.Identity{
		ID:          identity.IDForPhone(phone),
		PhoneNumber: stripped,
		DisplayName: name,
		CreatedAt:   now,
		LastSeenAt:  now,
	})
	if err := a.store.SaveIdentity(ctx, id); err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("save identity: %w", err)
	}
	return a.issueIdentityTokens(id)
}

// Login resolves an existing phone identity and issues a token pair. The
// caller is expected to have passed phone verification already.
func (a *App) Login(ctx context.Context, phone string) (domain.Identity, string, string, error) {
	stripped := identity.StripPhone(phone)
	if stripped == "" {
		return domain.Identity{}, "", "", ErrPhoneRequired
	}
	id, ok, err := a.store.GetIdentityByPhone(ctx, stripped)
	if err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("fetch identity: %w", err)
	}
	if !ok {
		return domain.Identity{}, "", "", ErrUnknownPhone
	}
	id = identity.Normalize(id)
	id.LastSeenAt = time.Now().UTC()
	if err := a.store.SaveIdentity(ctx, id); err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("update identity: %w", err)
	}
	return a.issueIdentityTokens(id)
}

// Guest creates an ephemeral anonymous identity. The registry row exists
// only so tokens resolve; it carries no phone number and class guest.
func (a *App) Guest(ctx context.Context) (domain.Identity, string, string, error) {
	now := time.Now().UTC()
	id := domain.Identity{
		ID:          "guest_" + util.NewID(),
		DisplayName: "Guest",
		Class:       domain.ClassGuest,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if err := a.store.SaveIdentity(ctx, id); err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("save guest identity: %w", err)
	}
	return a.issueIdentityTokens(id)
}

// IdentityFromToken resolves an identity from a session token. The class is
// re-derived on every read so a tampered stored flag never grants admin.
func (a *App) IdentityFromToken(ctx context.Context, token string) (domain.Identity, bool) {
	uid, ok, err := a.sessions.GetIdentityIDByToken(token)
	if err != nil || !ok {
		return domain.Identity{}, false
	}
	id, found, err := a.store.GetIdentity(ctx, uid)
	if err != nil || !found {
		return domain.Identity{}, false
	}
	return identity.Normalize(id), true
}

// Touch records activity for an identity, best effort.
func (a *App) Touch(ctx context.Context, identityID string) {
	_ = a.store.TouchIdentity(ctx, identityID, time.Now().UTC())
}

// Logout invalidates access token and optional refresh token.
func (a *App) Logout(accessToken, refreshToken string) error {
	if err := a.sessions.DeleteSession(accessToken); err != nil {
		return err
	}
	return a.RevokeRefreshToken(refreshToken)
}

// Refresh rotates the refresh token and issues a new token pair.
func (a *App) Refresh(ctx context.Context, refreshToken string) (domain.Identity, string, string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.Identity{}, "", "", ErrRefreshTokenRequired
	}
	identityID, newRefreshToken, err := a.refreshTokens.RotateToken(refreshToken, a.refreshTTL)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRefreshToken) || errors.Is(err, store.ErrRefreshTokenReplay) {
			return domain.Identity{}, "", "", ErrInvalidRefreshToken
		}
		return domain.Identity{}, "", "", fmt.Errorf("resolve refresh token: %w", err)
	}
	id, found, err := a.store.GetIdentity(ctx, identityID)
	if err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("fetch identity: %w", err)
	}
	if !found {
		_ = a.refreshTokens.DeleteToken(newRefreshToken)
		return domain.Identity{}, "", "", ErrInvalidRefreshToken
	}
	accessToken, err := a.sessions.NewSession(id.ID)
	if err != nil {
		_ = a.refreshTokens.DeleteToken(newRefreshToken)
		return domain.Identity{}, "", "", fmt.Errorf("issue access token: %w", err)
	}
	return identity.Normalize(id), accessToken, newRefreshToken, nil
}

// RevokeRefreshToken invalidates a refresh token explicitly.
func (a *App) RevokeRefreshToken(refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return a.refreshTokens.DeleteToken(refreshToken)
}

// ListIdentities returns every registry row, normalized (admin use only).
func (a *App) ListIdentities(ctx context.Context) ([]domain.Identity, error) {
	ids, err := a.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	for i := range ids {
		ids[i] = identity.Normalize(ids[i])
	}
	return ids, nil
}

// Store exposes the backing store for components wired at startup.
func (a *App) Store() store.Store {
	return a.store
}

func (a *App) issueIdentityTokens(id domain.Identity) (domain.Identity, string, string, error) {
	accessToken, err := a.sessions.NewSession(id.ID)
	if err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := a.refreshTokens.NewToken(id.ID, a.refreshTTL)
	if err != nil {
		return domain.Identity{}, "", "", fmt.Errorf("issue refresh token: %w", err)
	}
	return id, accessToken, refreshToken, nil
}
