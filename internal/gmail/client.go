package gmail

import "context"

// Client is the narrow Gmail surface required by gmapi. Implementations are
// bound to a single account.
type Client interface {
	Profile(ctx context.Context) (Profile, error)
	List(ctx context.Context, f ListFilter) (ListPage, error)
	GetRaw(ctx context.Context, id MessageID) (RawMessage, error)
	Send(ctx context.Context, raw string, thread ThreadID) (Receipt, error)
}
