// Package recorder persists decoded scan segments to a sqlite database so
// receive runs can be inspected offline. It implements the receiver's Sink.
package recorder

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scansegment/internal/segment"
)

// schema.sql creates the recorder schema: one row per receive session and one
// row per decoded segment.
//
//go:embed schema.sql
var schemaSQL string

// Recorder writes decoded segments into a sqlite database, scoped to one
// receive session.
type Recorder struct {
	db        *sql.DB
	sessionID string
}

// Open creates or opens the database at path, applies the schema, and starts
// a new session tagged with the wire format being received.
func Open(path, format string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise segment schema: %w", err)
	}

	sessionID := uuid.NewString()
	if _, err := db.Exec(
		`INSERT INTO sessions (id, format) VALUES (?, ?)`,
		sessionID, format,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	return &Recorder{db: db, sessionID: sessionID}, nil
}

// SessionID returns the identifier of the current receive session.
func (r *Recorder) SessionID() string { return r.sessionID }

// RecordSegment stores the scalar header fields and dimensions of one decoded
// segment.
func (r *Recorder) RecordSegment(seg *segment.Segment) error {
	lines, beams, echos := dimensions(seg)
	_, err := r.db.Exec(`
		INSERT INTO segments (
			session_id, telegram_counter, timestamp_transmit,
			segment_counter, frame_number, sender_id,
			module_count, scan_count, lines, beams, echos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.sessionID,
		int64(seg.TelegramCounter), int64(seg.TimestampTransmit),
		seg.SegmentCounter, seg.FrameNumber, seg.SenderID,
		len(seg.Modules), len(seg.Scans), lines, beams, echos,
	)
	if err != nil {
		return fmt.Errorf("failed to insert segment: %w", err)
	}
	return nil
}

// CountSegments reports the number of segments recorded for the current
// session.
func (r *Recorder) CountSegments() (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM segments WHERE session_id = ?`, r.sessionID,
	).Scan(&n)
	return n, err
}

// Close marks the session finished and releases the database.
func (r *Recorder) Close() error {
	if _, err := r.db.Exec(
		`UPDATE sessions SET ended_at = UNIXEPOCH('subsec') WHERE id = ?`, r.sessionID,
	); err != nil {
		r.db.Close()
		return err
	}
	return r.db.Close()
}

// dimensions summarises a segment's shape regardless of encoding.
func dimensions(seg *segment.Segment) (lines, beams, echos int) {
	if len(seg.Modules) > 0 {
		m := seg.Modules[0]
		return int(m.LinesInModule), int(m.BeamsPerScan), int(m.EchosPerBeam)
	}
	if len(seg.Scans) > 0 {
		s := seg.Scans[0]
		return len(seg.Scans), int(s.BeamCount), int(s.EchoCount)
	}
	return 0, 0, 0
}
