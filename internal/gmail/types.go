package gmail

import "time"

type MessageID string
type LabelID string
type ThreadID string

// Profile is the subset of the account profile used as a liveness probe.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
	HistoryID     uint64
}

// ListFilter narrows a message listing. Every field is optional.
type ListFilter struct {
	Labels           []LabelID
	Query            string // Gmail search syntax, e.g. `from:alerts@example.com is:unread`
	PageToken        string
	MaxResults       int64
	IncludeSpamTrash bool
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// RawMessage is a message fetched with format=raw. Raw is still base64url encoded.
type RawMessage struct {
	ID           MessageID
	ThreadID     ThreadID
	LabelIDs     []LabelID
	Snippet      string
	Raw          string
	HistoryID    uint64
	InternalDate time.Time
}

// Receipt is what the provider returns for a sent message.
type Receipt struct {
	ID       MessageID
	ThreadID ThreadID
	LabelIDs []LabelID
}
