// Package epgstore persists decoded program metadata to a local sqlite
// database. The database/sql + modernc.org/sqlite wiring (blank driver
// import, sql.Open("sqlite", path)) is grounded on internal/plex/epg.go's
// SyncEPGToPlex; the schema and query shape are new, built for this
// gateway's own guide data rather than a Plex library sync.
package epgstore

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andybalholm/brotli"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS programs (
	frequency         TEXT NOT NULL,
	channel_service_id TEXT NOT NULL,
	event_id          INTEGER NOT NULL,
	start_time        INTEGER NOT NULL,
	end_time          INTEGER NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	genre             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (frequency, channel_service_id, start_time)
);
CREATE INDEX IF NOT EXISTS idx_programs_end_time ON programs(end_time);
`

// Program is one decoded guide entry, keyed by the channel it aired on and
// when it started.
type Program struct {
	Frequency       string
	ChannelServiceID string
	EventID         uint16
	StartTime       time.Time
	EndTime         time.Time
	Title           string
	Description     string
	Genre           string
}

// Store wraps the sqlite-backed program table.
type Store struct {
	db *sql.DB
}

// Open creates/migrates the database at path and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("epgstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("epgstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProgram inserts a new program or, at an existing (frequency,
// channel, start_time) key, overwrites its event_id, end_time, title and
// genre; an existing description is kept. Used for EIT-sourced rows.
func (s *Store) UpsertProgram(ctx context.Context, p Program) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO programs (frequency, channel_service_id, event_id, start_time, end_time, title, description, genre)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(frequency, channel_service_id, start_time) DO UPDATE SET
			event_id = excluded.event_id,
			end_time = excluded.end_time,
			title = excluded.title,
			genre = excluded.genre
	`, p.Frequency, p.ChannelServiceID, p.EventID, p.StartTime.Unix(), p.EndTime.Unix(), p.Title, p.Description, p.Genre)
	if err != nil {
		return fmt.Errorf("epgstore: upsert: %w", err)
	}
	return nil
}

// UpdateDescription fills in a program's long-form description, sourced
// from an ETT extended-text section that arrives after the program's own
// EIT row. It never inserts — an ETT with no matching program row is
// dropped, since there is nothing yet to attach it to.
func (s *Store) UpdateDescription(ctx context.Context, frequency, channelServiceID string, eventID uint16, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE programs SET description = ?
		WHERE frequency = ? AND channel_service_id = ? AND event_id = ?
	`, description, frequency, channelServiceID, eventID)
	if err != nil {
		return fmt.Errorf("epgstore: update description: %w", err)
	}
	return nil
}

// SelectActive returns the program airing at instant t on the given
// channel, or (Program{}, false) if none covers that instant.
func (s *Store) SelectActive(ctx context.Context, frequency, channelServiceID string, t time.Time) (Program, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT frequency, channel_service_id, event_id, start_time, end_time, title, description, genre
		FROM programs
		WHERE frequency = ? AND channel_service_id = ? AND start_time <= ? AND end_time > ?
		ORDER BY start_time DESC LIMIT 1
	`, frequency, channelServiceID, t.Unix(), t.Unix())
	p, err := scanProgram(row)
	if err == sql.ErrNoRows {
		return Program{}, false, nil
	}
	if err != nil {
		return Program{}, false, fmt.Errorf("epgstore: select active: %w", err)
	}
	return p, true, nil
}

// SelectWindow returns every program on the given channel whose airtime
// overlaps [from, to), ordered by start time.
func (s *Store) SelectWindow(ctx context.Context, frequency, channelServiceID string, from, to time.Time) ([]Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frequency, channel_service_id, event_id, start_time, end_time, title, description, genre
		FROM programs
		WHERE frequency = ? AND channel_service_id = ? AND end_time > ? AND start_time < ?
		ORDER BY start_time ASC
	`, frequency, channelServiceID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("epgstore: select window: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		p, err := scanProgramRows(rows)
		if err != nil {
			return nil, fmt.Errorf("epgstore: scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Export writes every program row to path as brotli-compressed
// newline-delimited JSON, for backup or migration between EPG store files.
// Mirrors internal/sdtprobe/worker.go's atomic temp-file-then-rename save,
// swapping its gzip-free raw write for brotli compression.
func (s *Store) Export(ctx context.Context, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("epgstore: export create: %w", err)
	}
	bw := brotli.NewWriter(f)
	enc := json.NewEncoder(bw)

	rows, err := s.db.QueryContext(ctx, `
		SELECT frequency, channel_service_id, event_id, start_time, end_time, title, description, genre
		FROM programs ORDER BY frequency, channel_service_id, start_time
	`)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("epgstore: export query: %w", err)
	}
	for rows.Next() {
		p, err := scanProgramRows(rows)
		if err != nil {
			rows.Close()
			bw.Close()
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("epgstore: export scan: %w", err)
		}
		if err := enc.Encode(p); err != nil {
			rows.Close()
			bw.Close()
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("epgstore: export encode: %w", err)
		}
	}
	rows.Close()
	if err := bw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("epgstore: export flush: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("epgstore: export close: %w", err)
	}
	return os.Rename(tmp, path)
}

// Import reads a brotli-compressed newline-delimited JSON snapshot written
// by Export and upserts every row into the store.
func (s *Store) Import(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("epgstore: import open: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(brotli.NewReader(f)))
	n := 0
	for {
		var p Program
		if err := dec.Decode(&p); err != nil {
			if err == io.EOF {
				break
			}
			return n, fmt.Errorf("epgstore: import decode: %w", err)
		}
		if err := s.UpsertProgram(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Count returns the total number of program rows currently stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgram(row *sql.Row) (Program, error) {
	return scanProgramGeneric(row)
}

func scanProgramRows(rows *sql.Rows) (Program, error) {
	return scanProgramGeneric(rows)
}

func scanProgramGeneric(s rowScanner) (Program, error) {
	var p Program
	var start, end int64
	err := s.Scan(&p.Frequency, &p.ChannelServiceID, &p.EventID, &start, &end, &p.Title, &p.Description, &p.Genre)
	if err != nil {
		return Program{}, err
	}
	p.StartTime = time.Unix(start, 0).UTC()
	p.EndTime = time.Unix(end, 0).UTC()
	return p, nil
}
