package credential

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: "refresh-" + access,
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
}

func expiredToken(access string) *oauth2.Token {
	tok := validToken(access)
	tok.Expiry = time.Now().Add(-time.Hour).Round(time.Second)
	return tok
}

// tokenServer answers the OAuth token endpoint with access, or with an error
// when access is empty.
type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTokenServer(t *testing.T, access string) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if access == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": access,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) config(scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  ts.URL + "/auth",
			TokenURL: ts.URL + "/token",
			// a fixed style keeps failed exchanges to a single request
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: scopes,
	}
}

type fakeConsent struct {
	token *oauth2.Token
	err   error
	calls int
}

func (f *fakeConsent) Consent(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	_ = ctx
	_ = cfg
	f.calls++
	return f.token, f.err
}
