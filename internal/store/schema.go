package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    fetched_at           TEXT NOT NULL,
    overall_status       TEXT NOT NULL,
    saved_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_buckets (
    snapshot_id          INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    kind                 TEXT NOT NULL,
    used_usd             REAL NOT NULL,
    total_usd            REAL NOT NULL,
    level                TEXT NOT NULL,
    PRIMARY KEY (snapshot_id, kind)
);

CREATE TABLE IF NOT EXISTS notifications (
    id                   TEXT PRIMARY KEY,
    kind                 TEXT NOT NULL,
    level                TEXT NOT NULL,
    sent_at              TEXT NOT NULL,
    title                TEXT NOT NULL,
    message              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots(fetched_at);
CREATE INDEX IF NOT EXISTS idx_notifications_sent ON notifications(sent_at);
`
