package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS summaries (
    file_path            TEXT PRIMARY KEY,
    file_name            TEXT NOT NULL,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    fingerprint          TEXT NOT NULL,
    z3_version           TEXT,
    lines_read           INTEGER,
    bytes_read           INTEGER,
    terms                INTEGER,
    quantifiers          INTEGER,
    instantiations       INTEGER,
    equalities           INTEGER,
    parse_errors         INTEGER,
    timed_out            INTEGER NOT NULL DEFAULT 0,
    cancelled            INTEGER NOT NULL DEFAULT 0,
    matching_loops       INTEGER,
    elapsed_ns           INTEGER,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quant_usage (
    file_path            TEXT NOT NULL REFERENCES summaries(file_path) ON DELETE CASCADE,
    quantifier           TEXT NOT NULL,
    instantiations       INTEGER NOT NULL,
    PRIMARY KEY (file_path, quantifier)
);

CREATE INDEX IF NOT EXISTS idx_quant_usage_count ON quant_usage(file_path, instantiations);
`
