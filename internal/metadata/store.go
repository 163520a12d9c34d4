// Package metadata persists per-episode user state (star, playback position,
// local artifact links) in SQLite. The store is the single writer surface for
// episode rows; coordinators update it, the UI reads it.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"podbay/internal/episodekey"
)

// ErrNotFound indicates no record exists for the requested episode.
var ErrNotFound = errors.New("episode record not found")

// Store wraps the SQLite database holding episode metadata.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the metadata database at path and ensures
// the schema is current.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"},
	}.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes access; a single connection avoids
	// SQLITE_BUSY churn under concurrent coordinators.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string {
	return s.path
}

const recordColumns = `id, podcast_title, episode_title, audio_url, local_audio_path,
	local_caption_path, playback_position, is_completed, is_starred, file_size,
	artwork_url, published_at, downloaded_at, created_at, updated_at`

// Insert appends a new row for the record without looking for an existing one.
// Exposed deliberately: duplicate rows are a supported (if undesired) state
// and the read paths must cope, so tests and importers can create them.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (podcast_title, episode_title, audio_url, local_audio_path,
			local_caption_path, playback_position, is_completed, is_starred, file_size,
			artwork_url, published_at, downloaded_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PodcastTitle, rec.EpisodeTitle,
		nullableString(rec.AudioURL), nullableString(rec.LocalAudioPath),
		nullableString(rec.LocalCaptionPath),
		rec.PlaybackPosition, boolToInt(rec.Completed), boolToInt(rec.Starred),
		rec.FileSize, nullableString(rec.ArtworkURL),
		nullableTime(rec.PublishedAt), nullableTime(rec.DownloadedAt),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read insert id: %w", err)
	}
	return nil
}

// Upsert updates the most recently updated row matching the record's titles,
// or inserts a new row when none exists. Sibling duplicate rows are left
// untouched; the updated row becomes the one reads resolve to.
func (s *Store) Upsert(ctx context.Context, rec *Record) error {
	existing, err := s.GetByTitles(ctx, rec.PodcastTitle, rec.EpisodeTitle)
	if errors.Is(err, ErrNotFound) {
		return s.Insert(ctx, rec)
	}
	if err != nil {
		return err
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE episodes SET audio_url = ?, local_audio_path = ?, local_caption_path = ?,
			playback_position = ?, is_completed = ?, is_starred = ?, file_size = ?,
			artwork_url = ?, published_at = ?, downloaded_at = ?, updated_at = ?
		WHERE id = ?`,
		nullableString(rec.AudioURL), nullableString(rec.LocalAudioPath),
		nullableString(rec.LocalCaptionPath),
		rec.PlaybackPosition, boolToInt(rec.Completed), boolToInt(rec.Starred),
		rec.FileSize, nullableString(rec.ArtworkURL),
		nullableTime(rec.PublishedAt), nullableTime(rec.DownloadedAt),
		formatTime(rec.UpdatedAt), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update episode %d: %w", rec.ID, err)
	}
	return nil
}

// GetByKey resolves key to its titles and returns the matching record.
// Ambiguous legacy keys cannot be resolved and report ErrNotFound.
func (s *Store) GetByKey(ctx context.Context, key episodekey.Key) (*Record, error) {
	podcast, episode, ok := episodekey.Parse(key)
	if !ok {
		return nil, fmt.Errorf("%w: unparseable key", ErrNotFound)
	}
	return s.GetByTitles(ctx, podcast, episode)
}

// GetByTitles returns the record for the titles. When duplicate rows exist
// the most recently updated one wins; ties break toward the higher row id.
func (s *Store) GetByTitles(ctx context.Context, podcastTitle, episodeTitle string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM episodes
		WHERE podcast_title = ? AND episode_title = ?
		ORDER BY updated_at DESC, id DESC LIMIT 1`,
		podcastTitle, episodeTitle)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s / %s", ErrNotFound, podcastTitle, episodeTitle)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return rec, nil
}

// List returns all records, one per logical episode. Duplicate rows collapse
// to the most recently updated one. Ordered by podcast then episode title.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM episodes
		ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[episodekey.Key]bool)
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		key := rec.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].PodcastTitle != records[j].PodcastTitle {
			return records[i].PodcastTitle < records[j].PodcastTitle
		}
		return records[i].EpisodeTitle < records[j].EpisodeTitle
	})
	return records, nil
}

// setColumns applies a targeted UPDATE to the winning row for the titles, so
// two concurrent setters touching different columns cannot overwrite each
// other the way a full-row write would. When no row exists, seed populates
// the initial record; a nil seed makes the call a no-op.
func (s *Store) setColumns(ctx context.Context, podcastTitle, episodeTitle string, seed func(*Record), assignments string, args ...any) error {
	rec, err := s.GetByTitles(ctx, podcastTitle, episodeTitle)
	if errors.Is(err, ErrNotFound) {
		if seed == nil {
			return nil
		}
		rec = &Record{PodcastTitle: podcastTitle, EpisodeTitle: episodeTitle}
		seed(rec)
		return s.Insert(ctx, rec)
	}
	if err != nil {
		return err
	}

	args = append(args, formatTime(time.Now().UTC()), rec.ID)
	_, err = s.db.ExecContext(ctx,
		"UPDATE episodes SET "+assignments+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update episode %d: %w", rec.ID, err)
	}
	return nil
}

// SetLocalAudioPath records where the downloaded audio landed, along with its
// size and completion time. Creates the record when none exists.
func (s *Store) SetLocalAudioPath(ctx context.Context, podcastTitle, episodeTitle, path string, size int64) error {
	now := time.Now().UTC()
	return s.setColumns(ctx, podcastTitle, episodeTitle,
		func(rec *Record) {
			rec.LocalAudioPath = path
			rec.FileSize = size
			rec.DownloadedAt = &now
		},
		"local_audio_path = ?, file_size = ?, downloaded_at = ?",
		nullableString(path), size, formatTime(now))
}

// ClearLocalAudioPath drops the audio link after a local delete. The record
// itself survives so the star and playback position do too.
func (s *Store) ClearLocalAudioPath(ctx context.Context, podcastTitle, episodeTitle string) error {
	return s.setColumns(ctx, podcastTitle, episodeTitle, nil,
		"local_audio_path = NULL, file_size = 0, downloaded_at = NULL")
}

// SetLocalCaptionPath records where the transcript landed. Creates the record
// when none exists.
func (s *Store) SetLocalCaptionPath(ctx context.Context, podcastTitle, episodeTitle, path string) error {
	return s.setColumns(ctx, podcastTitle, episodeTitle,
		func(rec *Record) { rec.LocalCaptionPath = path },
		"local_caption_path = ?", nullableString(path))
}

// ClearLocalCaptionPath drops the caption link, e.g. when reconciliation
// finds the file gone.
func (s *Store) ClearLocalCaptionPath(ctx context.Context, podcastTitle, episodeTitle string) error {
	return s.setColumns(ctx, podcastTitle, episodeTitle, nil,
		"local_caption_path = NULL")
}

// SetStarred toggles the star flag, creating the record on first star.
func (s *Store) SetStarred(ctx context.Context, podcastTitle, episodeTitle string, starred bool) error {
	return s.setColumns(ctx, podcastTitle, episodeTitle,
		func(rec *Record) { rec.Starred = starred },
		"is_starred = ?", boolToInt(starred))
}

// SetPlaybackPosition stores the resume point in seconds, creating the record
// on first playback.
func (s *Store) SetPlaybackPosition(ctx context.Context, podcastTitle, episodeTitle string, seconds float64) error {
	return s.setColumns(ctx, podcastTitle, episodeTitle,
		func(rec *Record) { rec.PlaybackPosition = seconds },
		"playback_position = ?", seconds)
}

// MarkCompleted flags the episode as played to the end and resets the resume
// point.
func (s *Store) MarkCompleted(ctx context.Context, podcastTitle, episodeTitle string) error {
	return s.setColumns(ctx, podcastTitle, episodeTitle,
		func(rec *Record) {
			rec.Completed = true
			rec.PlaybackPosition = 0
		},
		"is_completed = 1, playback_position = 0")
}

// Remove deletes every row for the titles, duplicates included.
func (s *Store) Remove(ctx context.Context, podcastTitle, episodeTitle string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM episodes WHERE podcast_title = ? AND episode_title = ?",
		podcastTitle, episodeTitle)
	if err != nil {
		return fmt.Errorf("delete episode: %w", err)
	}
	return nil
}

// CountRows reports the raw row count, duplicates included. Used by status
// output and reconciliation reporting.
func (s *Store) CountRows(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM episodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                                     Record
		audioURL, localAudio, localCaption, art sql.NullString
		publishedAt, downloadedAt               sql.NullString
		completed, starred                      int
		createdAt, updatedAt                    string
	)
	err := row.Scan(&rec.ID, &rec.PodcastTitle, &rec.EpisodeTitle,
		&audioURL, &localAudio, &localCaption,
		&rec.PlaybackPosition, &completed, &starred, &rec.FileSize,
		&art, &publishedAt, &downloadedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.AudioURL = audioURL.String
	rec.LocalAudioPath = localAudio.String
	rec.LocalCaptionPath = localCaption.String
	rec.ArtworkURL = art.String
	rec.Completed = completed != 0
	rec.Starred = starred != 0
	if rec.PublishedAt, err = parseNullableTime(publishedAt); err != nil {
		return nil, fmt.Errorf("parse published_at: %w", err)
	}
	if rec.DownloadedAt, err = parseNullableTime(downloadedAt); err != nil {
		return nil, fmt.Errorf("parse downloaded_at: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// timeLayout keeps a fixed-width fraction so stored timestamps sort
// lexicographically in the same order as the times they encode.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
