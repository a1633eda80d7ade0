// Package session manages an authorized connection to one Gmail account.
//
// A Session is safe for use by one caller at a time; Handle and the
// credential stores serialize access so a concurrent caller cannot open a
// second connection, but operations are otherwise not coordinated.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/predicatestudio/gmapi/internal/credential"
	"github.com/predicatestudio/gmapi/internal/gmail"
	"github.com/predicatestudio/gmapi/internal/journal"
	"github.com/predicatestudio/gmapi/internal/message"
)

// Authorizer yields a usable credential.
type Authorizer interface {
	Obtain(ctx context.Context) (credential.Credential, error)
}

// Opener builds a client for the account from a credential.
type Opener func(ctx context.Context, cred credential.Credential) (gmail.Client, error)

// Recorder receives a record of every sent message.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// conn pairs a client with the credential it was opened with. It is replaced,
// never modified.
type conn struct {
	client gmail.Client
	cred   credential.Credential
}

// Session is a live, self-healing connection to one account.
type Session struct {
	Logger  *slog.Logger
	Journal Recorder
	Clock   func() time.Time

	account string
	auth    Authorizer
	open    Opener

	mu   sync.Mutex
	conn *conn
}

// New authorizes and opens a connection for account immediately.
func New(ctx context.Context, account string, auth Authorizer, open Opener, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s := &Session{
		Logger:  logger,
		Clock:   time.Now,
		account: account,
		auth:    auth,
		open:    open,
	}
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return s, nil
}

// Account returns the account identifier the session is bound to.
func (s *Session) Account() string { return s.account }

func (s *Session) connect(ctx context.Context) (*conn, error) {
	cred, err := s.auth.Obtain(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain credential: %w", err)
	}
	client, err := s.open(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("open gmail client: %w", err)
	}
	s.Logger.InfoContext(ctx, "opened gmail connection", "account", s.account)
	return &conn{client: client, cred: cred}, nil
}

// IsAlive probes the current connection with a profile lookup. Any error
// counts as dead.
func (s *Session) IsAlive(ctx context.Context) bool {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	return s.alive(ctx, c)
}

func (s *Session) alive(ctx context.Context, c *conn) bool {
	if c == nil || c.client == nil {
		return false
	}
	if _, err := c.client.Profile(ctx); err != nil {
		s.Logger.DebugContext(ctx, "liveness probe failed", "account", s.account, "error", err)
		return false
	}
	return true
}

// Handle returns a client confirmed alive, reopening the connection first
// when the probe fails. There is no retry beyond that single reopen.
func (s *Session) Handle(ctx context.Context) (gmail.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive(ctx, s.conn) {
		return s.conn.client, nil
	}
	s.Logger.InfoContext(ctx, "connection lost; reopening", "account", s.account)
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return c.client, nil
}

// Profile reports the mailbox profile of the session account.
func (s *Session) Profile(ctx context.Context) (gmail.Profile, error) {
	client, err := s.Handle(ctx)
	if err != nil {
		return gmail.Profile{}, err
	}
	p, err := client.Profile(ctx)
	if err != nil {
		return gmail.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListMessages returns one page of message ids.
func (s *Session) ListMessages(ctx context.Context, f gmail.ListFilter) (gmail.ListPage, error) {
	client, err := s.Handle(ctx)
	if err != nil {
		return gmail.ListPage{}, err
	}
	page, err := client.List(ctx, f)
	if err != nil {
		return gmail.ListPage{}, fmt.Errorf("list messages: %w", err)
	}
	return page, nil
}

// Fetch retrieves and decodes one message.
func (s *Session) Fetch(ctx context.Context, id gmail.MessageID) (*message.Inbound, error) {
	client, err := s.Handle(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := client.GetRaw(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return message.Decode(raw)
}

// FetchManyOptions tunes FetchMany.
type FetchManyOptions struct {
	// MaxPages bounds how many list pages are followed; 0 follows all of them.
	MaxPages int
	// SkipFailed keeps going past messages that fail to fetch; their errors are
	// returned together, alongside the messages that succeeded.
	SkipFailed bool
}

// FetchMany lists messages matching f and fetches each one individually, in
// list order. It costs one round trip per page plus one per message.
func (s *Session) FetchMany(ctx context.Context, f gmail.ListFilter, opts FetchManyOptions) ([]*message.Inbound, error) {
	var (
		out    []*message.Inbound
		failed *multierror.Error
	)
	for pages := 0; opts.MaxPages <= 0 || pages < opts.MaxPages; pages++ {
		page, err := s.ListMessages(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, id := range page.IDs {
			m, err := s.Fetch(ctx, id)
			if err != nil {
				if !opts.SkipFailed || ctx.Err() != nil {
					return nil, err
				}
				s.Logger.WarnContext(ctx, "skipping message", "id", id, "error", err)
				failed = multierror.Append(failed, err)
				continue
			}
			out = append(out, m)
		}
		if page.NextPageToken == "" {
			break
		}
		f.PageToken = page.NextPageToken
	}
	return out, failed.ErrorOrNil()
}

// Compose builds a new message from the session account.
func (s *Session) Compose(to, subject, text, attachmentPath string) (*message.Outbound, error) {
	return message.Compose(s.account, to, subject, text, attachmentPath)
}

// Reply builds an answer to original from the session account.
func (s *Session) Reply(original *message.Inbound, text, attachmentPath string) (*message.Outbound, error) {
	return message.Reply(s.account, original, text, attachmentPath)
}

// Send submits out, threading it when it carries a thread id. A message can
// be sent once; errors from the API are returned without retry.
func (s *Session) Send(ctx context.Context, out *message.Outbound) (gmail.Receipt, error) {
	if out.Sent() {
		return gmail.Receipt{}, message.ErrAlreadySent
	}
	raw, err := out.Encode()
	if err != nil {
		return gmail.Receipt{}, fmt.Errorf("encode message: %w", err)
	}
	client, err := s.Handle(ctx)
	if err != nil {
		return gmail.Receipt{}, err
	}
	receipt, err := client.Send(ctx, raw, out.ThreadID)
	if err != nil {
		return gmail.Receipt{}, fmt.Errorf("send message: %w", err)
	}
	out.MarkSent()
	s.Logger.InfoContext(ctx, "sent",
		"id", receipt.ID,
		"thread", receipt.ThreadID,
		"size", humanize.Bytes(uint64(len(raw))))

	if s.Journal != nil {
		entry := journal.Entry{
			MessageID: receipt.ID,
			ThreadID:  receipt.ThreadID,
			LabelIDs:  receipt.LabelIDs,
			To:        out.To,
			Subject:   out.Subject,
			Size:      len(raw),
			SentAt:    s.Clock(),
		}
		if err := s.Journal.Record(ctx, entry); err != nil {
			s.Logger.WarnContext(ctx, "journal record failed", "id", receipt.ID, "error", err)
		}
	}
	return receipt, nil
}
