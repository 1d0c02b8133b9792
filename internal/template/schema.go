package template

// Schema contains the DDL for the template store. Sample geometry is kept
// in unit space (0..1) so that samples captured on differently sized pages
// stay comparable.
const Schema = `
CREATE TABLE IF NOT EXISTS publications (
    key                TEXT PRIMARY KEY,
    name               TEXT NOT NULL DEFAULT '',
    articles_processed INTEGER NOT NULL DEFAULT 0,
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS template_samples (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    pub_key    TEXT NOT NULL,
    field_id   TEXT NOT NULL,
    page       INTEGER NOT NULL,
    x1         REAL NOT NULL,
    y1         REAL NOT NULL,
    x2         REAL NOT NULL,
    y2         REAL NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (pub_key) REFERENCES publications(key) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_samples_key_field ON template_samples(pub_key, field_id);
`
