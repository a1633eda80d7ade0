package credential

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

type persistingSource struct {
	base   oauth2.TokenSource
	store  Store
	scopes []string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

// PersistingTokenSource returns a token source for c that writes every newly
// issued access token back to store.
func PersistingTokenSource(cfg *oauth2.Config, c Credential, store Store, logger *slog.Logger) oauth2.TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	tok := *c.Token
	return oauth2.ReuseTokenSource(c.Token, &persistingSource{
		base:   cfg.TokenSource(context.Background(), &tok),
		store:  store,
		scopes: c.Scopes,
		logger: logger,
		last:   c.Token.AccessToken,
	})
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken
	if err := p.store.Write(Credential{Token: tok, Scopes: p.scopes}); err != nil {
		p.logger.Warn("persist refreshed token failed", "error", err)
	}
	return tok, nil
}
