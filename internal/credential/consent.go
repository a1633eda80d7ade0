package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrStateMismatch is returned when the callback state does not match the
// state sent with the authorization request.
var ErrStateMismatch = errors.New("authorization callback state mismatch")

const defaultConsentTimeout = 5 * time.Minute

// LoopbackConsent authorizes through the browser, catching the redirect on a
// listener bound to an ephemeral loopback port.
type LoopbackConsent struct {
	// Prompt shows the authorization URL to the user. Defaults to printing it to Out.
	Prompt  func(authURL string) error
	Out     io.Writer
	Timeout time.Duration
}

type callbackResult struct {
	code string
	err  error
}

func (l LoopbackConsent) Consent(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultConsentTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}

	conf := *cfg
	conf.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if err := l.prompt(authURL); err != nil {
		return nil, fmt.Errorf("prompt for consent: %w", err)
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for consent: %w", ctx.Err())
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}
	tok, err := conf.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func (l LoopbackConsent) prompt(authURL string) error {
	if l.Prompt != nil {
		return l.Prompt(authURL)
	}
	out := l.Out
	if out == nil {
		out = os.Stderr
	}
	_, err := fmt.Fprintf(out, "Authorize gmapi by visiting:\n\n  %s\n\n", authURL)
	return err
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			res.err = ErrStateMismatch
		case q.Get("code") == "":
			res.err = errors.New("authorization callback carried no code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
		}
		select {
		case results <- res:
		default:
		}
	})
}

var _ Consenter = LoopbackConsent{}
