// Package sessiondb archives per-tick records to sqlite so sessions can be
// reviewed after the headband disconnects. The schema is managed by embedded
// migrations; opening a database always brings it to the latest version.
package sessiondb

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/auraloop/mindstate/internal/monitoring"
	"github.com/auraloop/mindstate/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the tick archive at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One writer at a time keeps modernc's sqlite happy under the tick
	// loop plus report queries.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	db := &DB{sqldb}
	if err := db.migrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Closing m would close the shared connection, so it is left to the
	// garbage collector.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RecordTick flattens one composite record into the archive.
func (db *DB) RecordTick(rec *session.Record) error {
	badChannels, err := json.Marshal(rec.BadChannels)
	if err != nil {
		return fmt.Errorf("marshal bad channels: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO ticks (
			session_id, timestamp, brain_state,
			delta, theta, alpha, beta, gamma,
			has_artifact, artifact_kind, bad_channels,
			muscle, forehead, blink, movement, quality,
			confidence, stable, artifact_ratio, calibrated,
			heart_rate, hrv_rmssd, hrv_sdnn, hrv_valid,
			talking, talking_confidence,
			posture, pitch, roll
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Timestamp, string(rec.BrainState),
		rec.BandPowers.Delta, rec.BandPowers.Theta, rec.BandPowers.Alpha,
		rec.BandPowers.Beta, rec.BandPowers.Gamma,
		rec.HasArtifact, rec.ArtifactKind, string(badChannels),
		rec.Features.Muscle, rec.Features.Forehead, rec.Features.Blink,
		rec.Features.Movement, rec.Features.Quality,
		rec.Signal.Confidence, rec.Signal.Stable, rec.Signal.ArtifactRatio,
		rec.Calibration.Fitted,
		rec.HeartRate, rec.RMSSD, rec.SDNN, rec.HRVValid,
		rec.Talking.Active, rec.Talking.Confidence,
		rec.Posture.Status, rec.Posture.Pitch, rec.Posture.Roll,
	)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// Tick is one archived record, read back for reporting.
type Tick struct {
	TickID        int64
	SessionID     string
	Timestamp     float64
	BrainState    string
	Delta         float64
	Theta         float64
	Alpha         float64
	Beta          float64
	Gamma         float64
	HasArtifact   bool
	ArtifactKind  string
	BadChannels   []int
	Quality       float64
	Confidence    float64
	Stable        bool
	ArtifactRatio float64
	Calibrated    bool
	HeartRate     float64
	RMSSD         float64
	SDNN          float64
	HRVValid      bool
	Talking       bool
	Posture       string
	Pitch         float64
	Roll          float64
}

// SessionInfo summarizes one archived session.
type SessionInfo struct {
	SessionID  string
	Ticks      int
	FirstStamp float64
	LastStamp  float64
}

// ListSessions returns archived sessions, most recent first.
func (db *DB) ListSessions() ([]SessionInfo, error) {
	rows, err := db.Query(`
		SELECT session_id, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM ticks
		GROUP BY session_id
		ORDER BY MAX(timestamp) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var s SessionInfo
		if err := rows.Scan(&s.SessionID, &s.Ticks, &s.FirstStamp, &s.LastStamp); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// TicksForSession returns every tick of one session in time order.
func (db *DB) TicksForSession(sessionID string) ([]Tick, error) {
	rows, err := db.Query(`
		SELECT tick_id, session_id, timestamp, brain_state,
		       delta, theta, alpha, beta, gamma,
		       has_artifact, artifact_kind, bad_channels,
		       quality, confidence, stable, artifact_ratio, calibrated,
		       heart_rate, hrv_rmssd, hrv_sdnn, hrv_valid,
		       talking, posture, pitch, roll
		FROM ticks
		WHERE session_id = ?
		ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var t Tick
		var badChannels sql.NullString
		if err := rows.Scan(
			&t.TickID, &t.SessionID, &t.Timestamp, &t.BrainState,
			&t.Delta, &t.Theta, &t.Alpha, &t.Beta, &t.Gamma,
			&t.HasArtifact, &t.ArtifactKind, &badChannels,
			&t.Quality, &t.Confidence, &t.Stable, &t.ArtifactRatio, &t.Calibrated,
			&t.HeartRate, &t.RMSSD, &t.SDNN, &t.HRVValid,
			&t.Talking, &t.Posture, &t.Pitch, &t.Roll,
		); err != nil {
			return nil, err
		}
		if badChannels.Valid && badChannels.String != "" && badChannels.String != "null" {
			if err := json.Unmarshal([]byte(badChannels.String), &t.BadChannels); err != nil {
				monitoring.Logf("tick %d: bad channel list %q unreadable: %v", t.TickID, badChannels.String, err)
			}
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// StateHistogram counts how many ticks of a session spent in each state.
func (db *DB) StateHistogram(sessionID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT brain_state, COUNT(*)
		FROM ticks
		WHERE session_id = ?
		GROUP BY brain_state`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("state histogram: %w", err)
	}
	defer rows.Close()

	hist := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		hist[label] = n
	}
	return hist, rows.Err()
}
