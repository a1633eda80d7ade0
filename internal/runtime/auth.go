// Package runtime assembles sessions from configuration and adapts the Gmail API.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/predicatestudio/gmapi/internal/config"
	"github.com/predicatestudio/gmapi/internal/credential"
	gc "github.com/predicatestudio/gmapi/internal/gmail"
	"github.com/predicatestudio/gmapi/internal/journal"
	"github.com/predicatestudio/gmapi/internal/session"
)

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewLogger returns a stderr text logger at the named level (debug, info, warn, error).
func NewLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// NewStore builds the credential store selected by cfg.
func NewStore(cfg *config.Config, logger *slog.Logger) (credential.Store, error) {
	switch cfg.CredentialBackend {
	case config.BackendFile:
		return credential.NewFileStore(cfg.TokenPath, logger), nil
	case config.BackendKeyring:
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate keyring directory: %w", err)
		}
		ring, err := credential.OpenKeyring(cfg.KeyringService, filepath.Join(dir, "gmapi", "keyring"))
		if err != nil {
			return nil, err
		}
		return credential.NewKeyringStore(ring, "", logger), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.CredentialBackend)
	}
}

// NewOpener returns a session.Opener that builds a Gmail service for account.
// Tokens refreshed by the service transport are written back to store.
func NewOpener(oauthCfg *oauth2.Config, store credential.Store, account string, logger *slog.Logger, opts ...option.ClientOption) session.Opener {
	return func(ctx context.Context, cred credential.Credential) (gc.Client, error) {
		ts := credential.PersistingTokenSource(oauthCfg, cred, store, logger)
		all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
		svc, err := gmail.NewService(ctx, all...)
		if err != nil {
			return nil, err
		}
		return NewGoogleAPIClient(svc, account), nil
	}
}

// OpenSession assembles a session from cfg. The returned close function
// releases the journal when one is configured.
func OpenSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...option.ClientOption) (*session.Session, func() error, error) {
	if logger == nil {
		logger = DefaultLogger()
	}
	scopes := credential.ExpandScopes(cfg.Scopes)
	oauthCfg, err := credential.LoadClientConfig(cfg.ClientSecrets, scopes)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	auth := credential.NewAuthorizer(store, oauthCfg, credential.LoopbackConsent{Timeout: cfg.ConsentTimeout}, logger)

	var j *journal.Journal
	if cfg.JournalPath != "" {
		if j, err = journal.Open(cfg.JournalPath); err != nil {
			return nil, nil, err
		}
	}
	closeFn := func() error {
		if j == nil {
			return nil
		}
		return j.Close()
	}

	s, err := session.New(ctx, cfg.Account, auth, NewOpener(oauthCfg, store, cfg.Account, logger, opts...), logger)
	if err != nil {
		return nil, nil, errors.Join(err, closeFn())
	}
	if j != nil {
		s.Journal = j
	}
	logger.Info("session ready", "account", cfg.Account, "scopes", scopes, "backend", cfg.CredentialBackend)
	return s, closeFn, nil
}
