package credential

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Consenter runs an interactive authorization and returns a fresh token.
type Consenter interface {
	Consent(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// Authorizer hands out a usable credential, refreshing or re-authorizing as
// needed. The configured scope set is used for every step.
type Authorizer struct {
	Store   Store
	Config  *oauth2.Config
	Consent Consenter
	Logger  *slog.Logger
}

// NewAuthorizer constructs an Authorizer. cfg.Scopes must already be expanded.
func NewAuthorizer(store Store, cfg *oauth2.Config, consent Consenter, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Authorizer{Store: store, Config: cfg, Consent: consent, Logger: logger}
}

// LoadClientConfig reads an OAuth client secrets file and binds it to scopes.
func LoadClientConfig(path string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator configured
	if err != nil {
		return nil, fmt.Errorf("read client secrets %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets %s: %w", path, err)
	}
	return cfg, nil
}

// Obtain returns a stored credential when it is still valid, a refreshed one
// when it is expired but refreshable, and otherwise runs the consent flow.
// Every new credential is persisted before it is returned.
func (a *Authorizer) Obtain(ctx context.Context) (Credential, error) {
	stored, ok, err := a.Store.Read()
	if err != nil {
		return Credential{}, fmt.Errorf("read credential: %w", err)
	}
	if ok && !stored.Covers(a.Config.Scopes) {
		a.Logger.InfoContext(ctx, "stored credential lacks requested scopes; re-authorizing",
			"have", stored.Scopes, "want", a.Config.Scopes)
		ok = false
	}
	if ok && stored.Valid() {
		return stored, nil
	}
	if ok && stored.Refreshable() {
		refreshed, refreshErr := a.refresh(ctx, stored)
		if refreshErr == nil {
			return refreshed, nil
		}
		a.Logger.WarnContext(ctx, "token refresh failed; wiping stored credential", "error", refreshErr)
		if wipeErr := a.Store.Wipe(); wipeErr != nil {
			return Credential{}, wipeErr
		}
	}
	return a.authorize(ctx)
}

func (a *Authorizer) refresh(ctx context.Context, stored Credential) (Credential, error) {
	expired := *stored.Token
	tok, err := a.Config.TokenSource(ctx, &expired).Token()
	if err != nil {
		return Credential{}, fmt.Errorf("refresh token: %w", err)
	}
	c := Credential{Token: tok, Scopes: a.scopes(stored)}
	if err := a.Store.Write(c); err != nil {
		return Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}
	a.Logger.DebugContext(ctx, "refreshed credential", "expiry", tok.Expiry)
	return c, nil
}

func (a *Authorizer) authorize(ctx context.Context) (Credential, error) {
	if a.Consent == nil {
		return Credential{}, ErrNoCredential
	}
	a.Logger.InfoContext(ctx, "requesting authorization", "scopes", a.Config.Scopes)
	tok, err := a.Consent.Consent(ctx, a.Config)
	if err != nil {
		return Credential{}, fmt.Errorf("authorize: %w", err)
	}
	c := Credential{Token: tok, Scopes: a.Config.Scopes}
	if err := a.Store.Write(c); err != nil {
		return Credential{}, fmt.Errorf("persist credential: %w", err)
	}
	return c, nil
}

func (a *Authorizer) scopes(stored Credential) []string {
	if len(stored.Scopes) > 0 {
		return stored.Scopes
	}
	return a.Config.Scopes
}
