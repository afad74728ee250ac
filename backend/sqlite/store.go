package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gosyncmovies/backend"
)

// Store is the SQLite-backed backend.LocalStore.
type Store struct {
	db       *Database
	watchers *broadcaster
}

var _ backend.LocalStore = (*Store)(nil)

// Open opens (creating if needed) the movie database at path.
func Open(path string) (*Store, error) {
	db, err := InitDatabase(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, watchers: newBroadcaster()}, nil
}

// DB exposes the underlying database for diagnostics.
func (s *Store) DB() *Database {
	return s.db
}

// Close stops every live stream and closes the database.
func (s *Store) Close() error {
	s.watchers.close()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (backend.MovieRecord, error) {
	var (
		rec                                      backend.MovieRecord
		seen, watchlist, favorite, notInterested int
		rating                                   sql.NullFloat64
		aiReason, lastErr                        sql.NullString
		addedAt, lastModified                    int64
		state                                    string
	)
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.PosterURL, &rec.BackdropURL, &rec.ReleaseDate, &rec.Overview,
		&seen, &watchlist, &favorite, &rating, &aiReason, &notInterested,
		&addedAt, &lastModified, &state, &rec.SyncAttempts, &lastErr,
	)
	if err != nil {
		return rec, err
	}
	rec.IsSeen = seen != 0
	rec.IsWatchlist = watchlist != 0
	rec.IsFavorite = favorite != 0
	rec.NotInterested = notInterested != 0
	if rating.Valid {
		v := rating.Float64
		rec.Rating = &v
	}
	if aiReason.Valid {
		v := aiReason.String
		rec.AIReason = &v
	}
	rec.LastSyncError = lastErr.String
	rec.AddedAt = backend.FromMillis(addedAt)
	rec.LastModified = backend.FromMillis(lastModified)
	rec.SyncState = backend.ParseSyncState(state)
	return rec, nil
}

func movieArgs(rec backend.MovieRecord) []any {
	var rating, aiReason, lastErr any
	if rec.Rating != nil {
		rating = *rec.Rating
	}
	if rec.AIReason != nil {
		aiReason = *rec.AIReason
	}
	if rec.LastSyncError != "" {
		lastErr = rec.LastSyncError
	}
	state := rec.SyncState
	if state == "" {
		state = backend.SyncPendingCreate
	}
	return []any{
		rec.ID, rec.Title, rec.PosterURL, rec.BackdropURL, rec.ReleaseDate, rec.Overview,
		boolToInt(rec.IsSeen), boolToInt(rec.IsWatchlist), boolToInt(rec.IsFavorite), rating, aiReason, boolToInt(rec.NotInterested),
		backend.ToMillis(rec.AddedAt), backend.ToMillis(rec.LastModified), string(state), rec.SyncAttempts, lastErr,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const upsertSQL = `INSERT OR REPLACE INTO movies (` + movieColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func storeErr(op string, id int64, err error) error {
	return &backend.StoreError{Op: op, MovieID: id, Err: err}
}

// Get returns the record with the given id, or nil if absent.
func (s *Store) Get(ctx context.Context, id int64) (*backend.MovieRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+movieColumns+" FROM movies WHERE id = ?", id)
	rec, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", id, err)
	}
	return &rec, nil
}

// GetMany returns the records present among ids.
func (s *Store) GetMany(ctx context.Context, ids []int64) ([]backend.MovieRecord, error) {
	if len(ids) == 0 {
		return []backend.MovieRecord{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + movieColumns + " FROM movies WHERE id IN (" + placeholders + ") ORDER BY id"
	return s.queryMovies(ctx, "get many", query, args...)
}

// List returns the records currently matching flag, most recently modified first.
func (s *Store) List(ctx context.Context, flag backend.Flag) ([]backend.MovieRecord, error) {
	pred, ok := flagPredicates[string(flag)]
	if !ok {
		return nil, fmt.Errorf("unknown flag %q", flag)
	}
	query := "SELECT " + movieColumns + " FROM movies WHERE " + pred +
		" AND sync_state != 'PENDING_DELETE' ORDER BY last_modified DESC, id"
	return s.queryMovies(ctx, "list "+string(flag), query)
}

// SelectPendingSync returns every record that needs a put.
func (s *Store) SelectPendingSync(ctx context.Context) ([]backend.MovieRecord, error) {
	query := "SELECT " + movieColumns + " FROM movies WHERE sync_state IN ('PENDING_CREATE', 'PENDING_UPDATE', 'FAILED') ORDER BY id"
	return s.queryMovies(ctx, "select pending sync", query)
}

// SelectPendingDelete returns every record awaiting remote deletion.
func (s *Store) SelectPendingDelete(ctx context.Context) ([]backend.MovieRecord, error) {
	query := "SELECT " + movieColumns + " FROM movies WHERE sync_state = 'PENDING_DELETE' ORDER BY id"
	return s.queryMovies(ctx, "select pending delete", query)
}

func (s *Store) queryMovies(ctx context.Context, op, query string, args ...any) ([]backend.MovieRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, 0, err)
	}
	defer rows.Close()

	out := []backend.MovieRecord{}
	for rows.Next() {
		rec, err := scanMovie(rows)
		if err != nil {
			return nil, storeErr(op, 0, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, 0, err)
	}
	return out, nil
}

// Upsert inserts or fully replaces a record.
func (s *Store) Upsert(ctx context.Context, rec backend.MovieRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertSQL, movieArgs(rec)...); err != nil {
		return storeErr("upsert", rec.ID, err)
	}
	s.watchers.notify()
	return nil
}

// UpdateFlag applies one user-state change. The dirty trigger tags the row.
func (s *Store) UpdateFlag(ctx context.Context, id int64, change backend.FlagChange, at time.Time) error {
	if err := change.Validate(); err != nil {
		return err
	}

	var column string
	var value any
	switch change.Flag {
	case backend.FlagSeen:
		column, value = "is_seen", boolToInt(change.Value)
	case backend.FlagWatchlist:
		column, value = "is_watchlist", boolToInt(change.Value)
	case backend.FlagFavorite:
		column, value = "is_favorite", boolToInt(change.Value)
	case backend.FlagNotInterested:
		column, value = "not_interested", boolToInt(change.Value)
	case backend.FlagRating:
		column = "rating"
		if change.Rating != nil {
			value = *change.Rating
		}
	}

	set := column + " = ?, last_modified = ?"
	if change.Flag.ClearsAIReason() {
		set += ", ai_reason = NULL"
	}
	query := "UPDATE movies SET " + set + " WHERE id = ? AND sync_state != 'PENDING_DELETE'"

	res, err := s.db.ExecContext(ctx, query, value, backend.ToMillis(at), id)
	if err != nil {
		return storeErr("update flag", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update flag", id, err)
	}
	if n == 0 {
		return storeErr("update flag", id, backend.ErrMovieNotFound)
	}
	s.watchers.notify()
	return nil
}

// MarkPendingDelete tags a row for remote deletion, whatever its state.
// A push that already read the row can no longer tag it SYNCED.
func (s *Store) MarkPendingDelete(ctx context.Context, id int64, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr("mark pending delete", id, err)
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx, "SELECT sync_state FROM movies WHERE id = ?", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storeErr("mark pending delete", id, backend.ErrMovieNotFound)
	}
	if err != nil {
		return false, storeErr("mark pending delete", id, err)
	}

	if backend.ParseSyncState(state) == backend.SyncPendingDelete {
		return false, nil
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE movies SET sync_state = 'PENDING_DELETE', last_modified = ?, sync_attempts = 0, last_sync_error = NULL WHERE id = ?`,
		backend.ToMillis(at), id)
	if err != nil {
		return false, storeErr("mark pending delete", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr("mark pending delete", id, err)
	}
	s.watchers.notify()
	return true, nil
}

// MarkSynced tags a pushed row SYNCED unless it was edited after the push read it.
func (s *Store) MarkSynced(ctx context.Context, id int64, lastModified time.Time) (bool, error) {
	return s.execChanged(ctx, "mark synced", id,
		`UPDATE movies SET sync_state = 'SYNCED', sync_attempts = 0, last_sync_error = NULL
		 WHERE id = ? AND last_modified = ? AND sync_state IN ('PENDING_CREATE', 'PENDING_UPDATE', 'FAILED')`,
		id, backend.ToMillis(lastModified))
}

// MarkFailed records a failed push attempt. Deletes stay PENDING_DELETE.
func (s *Store) MarkFailed(ctx context.Context, id int64, lastModified time.Time, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.execChanged(ctx, "mark failed", id,
		`UPDATE movies
		 SET sync_state = CASE WHEN sync_state = 'PENDING_DELETE' THEN 'PENDING_DELETE' ELSE 'FAILED' END,
		     sync_attempts = sync_attempts + 1,
		     last_sync_error = ?
		 WHERE id = ? AND last_modified = ? AND sync_state != 'SYNCED'`,
		msg, id, backend.ToMillis(lastModified))
}

// RemoveIfPendingDelete physically removes a row confirmed deleted remotely.
func (s *Store) RemoveIfPendingDelete(ctx context.Context, id int64) (bool, error) {
	return s.execChanged(ctx, "remove", id,
		"DELETE FROM movies WHERE id = ? AND sync_state = 'PENDING_DELETE'", id)
}

func (s *Store) execChanged(ctx context.Context, op string, id int64, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storeErr(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(op, id, err)
	}
	if n > 0 {
		s.watchers.notify()
	}
	return n > 0, nil
}

// ReplaceIfUnchanged writes rec only if the stored row still matches expected.
func (s *Store) ReplaceIfUnchanged(ctx context.Context, rec backend.MovieRecord, expected *backend.MovieRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr("replace", rec.ID, err)
	}
	defer tx.Rollback()

	var lastModified int64
	var state string
	err = tx.QueryRowContext(ctx, "SELECT last_modified, sync_state FROM movies WHERE id = ?", rec.ID).Scan(&lastModified, &state)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expected != nil {
			return false, nil
		}
	case err != nil:
		return false, storeErr("replace", rec.ID, err)
	default:
		if expected == nil ||
			lastModified != backend.ToMillis(expected.LastModified) ||
			backend.ParseSyncState(state) != expected.SyncState {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx, upsertSQL, movieArgs(rec)...); err != nil {
		return false, storeErr("replace", rec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr("replace", rec.ID, err)
	}
	s.watchers.notify()
	return true, nil
}

// Stats counts rows per sync state.
func (s *Store) Stats(ctx context.Context) (map[backend.SyncState]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT sync_state, COUNT(*) FROM movies GROUP BY sync_state")
	if err != nil {
		return nil, storeErr("stats", 0, err)
	}
	defer rows.Close()

	stats := make(map[backend.SyncState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, storeErr("stats", 0, err)
		}
		stats[backend.ParseSyncState(state)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("stats", 0, err)
	}
	return stats, nil
}

// Clear wipes every row.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM movies"); err != nil {
		return storeErr("clear", 0, err)
	}
	s.watchers.notify()
	return nil
}
