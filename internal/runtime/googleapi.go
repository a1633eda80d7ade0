package runtime

import (
	"context"
	"time"

	"google.golang.org/api/gmail/v1"

	gc "github.com/predicatestudio/gmapi/internal/gmail"
)

type googleClient struct {
	svc  *gmail.Service
	user string
}

// NewGoogleAPIClient binds svc to one account. An empty user means "me".
func NewGoogleAPIClient(svc *gmail.Service, user string) *googleClient {
	if user == "" {
		user = "me"
	}
	return &googleClient{svc: svc, user: user}
}

func (g *googleClient) Profile(ctx context.Context) (gc.Profile, error) {
	p, err := g.svc.Users.GetProfile(g.user).Context(ctx).Do()
	if err != nil {
		return gc.Profile{}, err
	}
	return gc.Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}

func (g *googleClient) List(ctx context.Context, f gc.ListFilter) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(g.user)
	if len(f.Labels) > 0 {
		call = call.LabelIds(toStrings(f.Labels)...)
	}
	if f.Query != "" {
		call = call.Q(f.Query)
	}
	if f.PageToken != "" {
		call = call.PageToken(f.PageToken)
	}
	if f.MaxResults > 0 {
		call = call.MaxResults(f.MaxResults)
	}
	if f.IncludeSpamTrash {
		call = call.IncludeSpamTrash(true)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, err
	}
	ids := make([]gc.MessageID, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, gc.MessageID(m.Id))
	}
	return gc.ListPage{IDs: ids, NextPageToken: res.NextPageToken}, nil
}

func (g *googleClient) GetRaw(ctx context.Context, id gc.MessageID) (gc.RawMessage, error) {
	msg, err := g.svc.Users.Messages.Get(g.user, string(id)).Format("raw").Context(ctx).Do()
	if err != nil {
		return gc.RawMessage{}, err
	}
	return gc.RawMessage{
		ID:           gc.MessageID(msg.Id),
		ThreadID:     gc.ThreadID(msg.ThreadId),
		LabelIDs:     toLabelIDs(msg.LabelIds),
		Snippet:      msg.Snippet,
		Raw:          msg.Raw,
		HistoryID:    msg.HistoryId,
		InternalDate: time.UnixMilli(msg.InternalDate),
	}, nil
}

func (g *googleClient) Send(ctx context.Context, raw string, thread gc.ThreadID) (gc.Receipt, error) {
	msg := &gmail.Message{Raw: raw, ThreadId: string(thread)}
	res, err := g.svc.Users.Messages.Send(g.user, msg).Context(ctx).Do()
	if err != nil {
		return gc.Receipt{}, err
	}
	return gc.Receipt{
		ID:       gc.MessageID(res.Id),
		ThreadID: gc.ThreadID(res.ThreadId),
		LabelIDs: toLabelIDs(res.LabelIds),
	}, nil
}

func toStrings(ids []gc.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toLabelIDs(ids []string) []gc.LabelID {
	out := make([]gc.LabelID, len(ids))
	for i, id := range ids {
		out[i] = gc.LabelID(id)
	}
	return out
}
