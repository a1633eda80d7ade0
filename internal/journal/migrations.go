package journal

type migration struct {
	version int
	sql     string
}

// migrations must stay ordered; versions start at 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sent_messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id  TEXT NOT NULL,
	thread_id   TEXT NOT NULL DEFAULT '',
	label_ids   TEXT NOT NULL DEFAULT '',
	recipient   TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	size_bytes  INTEGER NOT NULL DEFAULT 0,
	sent_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sent_thread ON sent_messages(thread_id);
`,
	},
}
