package sqlite

// Schema version for migration management
const SchemaVersion = 1

// MoviesTableSQL creates the single movies table. Timestamps are epoch milliseconds.
// sync_state is free text; readers map unknown values to SYNCED.
const MoviesTableSQL = `
CREATE TABLE IF NOT EXISTS movies (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    poster_url TEXT NOT NULL DEFAULT '',
    backdrop_url TEXT NOT NULL DEFAULT '',
    release_date TEXT NOT NULL DEFAULT '',
    overview TEXT NOT NULL DEFAULT '',

    is_seen INTEGER NOT NULL DEFAULT 0,
    is_watchlist INTEGER NOT NULL DEFAULT 0,
    is_favorite INTEGER NOT NULL DEFAULT 0,
    rating REAL,
    ai_reason TEXT,
    not_interested INTEGER NOT NULL DEFAULT 0,

    added_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL,
    sync_state TEXT NOT NULL DEFAULT 'PENDING_CREATE',

    -- Push bookkeeping
    sync_attempts INTEGER NOT NULL DEFAULT 0,
    last_sync_error TEXT
);
`

// SchemaVersionTableSQL creates the schema version table for migration tracking
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// MarkDirtyTriggerSQL moves a row to PENDING_UPDATE whenever a user-state column
// is written through UPDATE. Rows the remote has not seen yet, or that await
// deletion, keep their tag. INSERT OR REPLACE does not fire it, so pulls and
// full upserts set the tag they carry.
const MarkDirtyTriggerSQL = `
CREATE TRIGGER IF NOT EXISTS trg_movies_mark_dirty
AFTER UPDATE OF is_seen, is_watchlist, is_favorite, rating, ai_reason, not_interested ON movies
FOR EACH ROW
WHEN NEW.sync_state NOT IN ('PENDING_CREATE', 'PENDING_DELETE', 'PENDING_UPDATE')
BEGIN
    UPDATE movies SET sync_state = 'PENDING_UPDATE' WHERE id = NEW.id;
END;
`

// MoviesIndexesSQL creates indexes on movies table for common queries
const MoviesIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_movies_sync_state ON movies(sync_state);
CREATE INDEX IF NOT EXISTS idx_movies_last_modified ON movies(last_modified);
CREATE INDEX IF NOT EXISTS idx_movies_is_watchlist ON movies(is_watchlist);
CREATE INDEX IF NOT EXISTS idx_movies_is_seen ON movies(is_seen);
CREATE INDEX IF NOT EXISTS idx_movies_is_favorite ON movies(is_favorite);
`

// AllTableSchemas returns all table creation statements in order
func AllTableSchemas() []string {
	return []string{
		SchemaVersionTableSQL,
		MoviesTableSQL,
	}
}

// AllTriggers returns all trigger creation statements
func AllTriggers() []string {
	return []string{
		MarkDirtyTriggerSQL,
	}
}

// AllIndexes returns all index creation statements
func AllIndexes() []string {
	return []string{
		MoviesIndexesSQL,
	}
}

// PragmaStatements returns pragma statements to execute on database connection
func PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout = 5000",
	}
}

// movieColumns is the column list shared by every SELECT and INSERT.
const movieColumns = `id, title, poster_url, backdrop_url, release_date, overview,
    is_seen, is_watchlist, is_favorite, rating, ai_reason, not_interested,
    added_at, last_modified, sync_state, sync_attempts, last_sync_error`

// flagPredicates maps each flag to its WHERE clause. Rows awaiting deletion
// are hidden from every flag view. The empty flag selects the whole library.
var flagPredicates = map[string]string{
	"":               "1 = 1",
	"seen":           "is_seen = 1",
	"watchlist":      "is_watchlist = 1",
	"favorite":       "is_favorite = 1",
	"not_interested": "not_interested = 1",
	"rating":         "rating IS NOT NULL",
	"recommended":    "ai_reason IS NOT NULL AND is_seen = 0 AND not_interested = 0",
}
