package runtime

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const rawMIME = "From: alice@example.com\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Status\r\n" +
	"Message-ID: <status-1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"all green\r\n"

// gmailServer serves the handful of Gmail REST endpoints the adapter calls.
type gmailServer struct {
	*httptest.Server

	mu       sync.Mutex
	auth     []string
	queries  []string
	sent     []map[string]string
	failList bool
}

func newGmailServer(t *testing.T) *gmailServer {
	t.Helper()
	gs := &gmailServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/{user}/profile", func(w http.ResponseWriter, r *http.Request) {
		gs.note(r)
		writeJSON(w, map[string]any{
			"emailAddress":  r.PathValue("user") + "@example.com",
			"messagesTotal": 42,
			"threadsTotal":  17,
			"historyId":     "9001",
		})
	})
	mux.HandleFunc("GET /gmail/v1/users/{user}/messages", func(w http.ResponseWriter, r *http.Request) {
		gs.note(r)
		gs.mu.Lock()
		gs.queries = append(gs.queries, r.URL.RawQuery)
		fail := gs.failList
		gs.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Rate Limit Exceeded"}}`)
			return
		}
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"messages":      []map[string]string{{"id": "m1", "threadId": "t1"}, {"id": "m2", "threadId": "t2"}},
				"nextPageToken": "next",
			})
			return
		}
		writeJSON(w, map[string]any{"messages": []map[string]string{{"id": "m3", "threadId": "t3"}}})
	})
	mux.HandleFunc("GET /gmail/v1/users/{user}/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		gs.note(r)
		id := r.PathValue("id")
		if r.URL.Query().Get("format") != "raw" || id == "missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`)
			return
		}
		writeJSON(w, map[string]any{
			"id":           id,
			"threadId":     "t-" + id,
			"labelIds":     []string{"INBOX", "UNREAD"},
			"snippet":      "all green",
			"raw":          base64.URLEncoding.EncodeToString([]byte(rawMIME)),
			"historyId":    "1234",
			"internalDate": "1700000000000",
		})
	})
	mux.HandleFunc("POST /gmail/v1/users/{user}/messages/send", func(w http.ResponseWriter, r *http.Request) {
		gs.note(r)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gs.mu.Lock()
		gs.sent = append(gs.sent, body)
		gs.mu.Unlock()
		thread := body["threadId"]
		if thread == "" {
			thread = "t-new"
		}
		writeJSON(w, map[string]any{"id": "s1", "threadId": thread, "labelIds": []string{"SENT"}})
	})
	gs.Server = httptest.NewServer(mux)
	t.Cleanup(gs.Close)
	return gs
}

func (gs *gmailServer) note(r *http.Request) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.auth = append(gs.auth, r.Header.Get("Authorization"))
}

func (gs *gmailServer) endpoint() string {
	return strings.TrimSuffix(gs.URL, "/") + "/"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
