// Package sqlite keeps a queryable index of committed turns and score
// changes. Redis holds the live save; this index survives save expiry.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// TurnStore is an engine observer that indexes every committed turn.
type TurnStore struct {
	db *sql.DB
}

// TurnRow is one indexed turn.
type TurnRow struct {
	GameID       uuid.UUID
	Scenario     string
	Turn         int
	Date         string
	Moves        []state.Move
	FailedScores int
	Ended        bool
	EndReason    string
	CompletedAt  time.Time
}

// ScorePoint is one committed value of an entity attribute.
type ScorePoint struct {
	Turn      int
	Date      string
	Judgment  string
	Previous  string
	Committed string
	Failed    bool
	Error     string
}

// Open opens (creating if needed) the index at dsn. A plain path gets its
// parent directory created; ":memory:" and file: URIs are passed through.
func Open(ctx context.Context, dsn string) (*TurnStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty history dsn")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history db: %w", err)
	}
	if err := initPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &TurnStore{db: db}, nil
}

func initPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to set %s: %w", p, err)
		}
	}
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			scenario TEXT NOT NULL,
			date TEXT NOT NULL DEFAULT '',
			moves_json TEXT NOT NULL,
			failed_scores INTEGER NOT NULL DEFAULT 0,
			ended INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL DEFAULT '',
			completed_at TEXT NOT NULL,
			PRIMARY KEY (game_id, turn)
		);`,
		`CREATE TABLE IF NOT EXISTS scores (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			entity TEXT NOT NULL,
			attribute TEXT NOT NULL,
			judgment TEXT,
			previous TEXT,
			committed TEXT,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (game_id, turn, entity, attribute),
			FOREIGN KEY (game_id, turn) REFERENCES turns(game_id, turn) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS scores_by_attribute ON scores(game_id, entity, attribute, turn);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to init history schema: %w", err)
		}
	}
	return nil
}

func (s *TurnStore) Close() error {
	return s.db.Close()
}

// TurnCommitted indexes rec. Re-indexing a turn replaces it.
func (s *TurnStore) TurnCommitted(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
	moves, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("failed to marshal moves: %w", err)
	}
	scenarioName := ""
	if snap.Scenario != nil {
		scenarioName = snap.Scenario.Name
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	gameID := snap.ID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE game_id = ? AND turn = ?`, gameID, rec.Turn); err != nil {
		return fmt.Errorf("failed to replace turn: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (game_id, turn, scenario, date, moves_json, failed_scores, ended, end_reason, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gameID, rec.Turn, scenarioName, rec.Date, string(moves), rec.FailedScores(),
		boolInt(snap.Ended && snap.Turn == rec.Turn), snap.EndReason, rec.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	for _, sc := range rec.Scores {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scores (game_id, turn, entity, attribute, judgment, previous, committed, failed, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			gameID, rec.Turn, sc.Entity, sc.Rule,
			valueText(sc.Judgment), valueText(sc.Previous), valueText(sc.Committed),
			boolInt(sc.Failed), sc.Error)
		if err != nil {
			return fmt.Errorf("failed to insert score %s.%s: %w", sc.Entity, sc.Rule, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history tx: %w", err)
	}
	return nil
}

// Turns returns a game's indexed turns in order.
func (s *TurnStore) Turns(ctx context.Context, gameID uuid.UUID) ([]TurnRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn, scenario, date, moves_json, failed_scores, ended, end_reason, completed_at
		 FROM turns WHERE game_id = ? ORDER BY turn`, gameID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TurnRow
	for rows.Next() {
		var (
			r           TurnRow
			movesJSON   string
			ended       int
			completedAt string
		)
		if err := rows.Scan(&r.Turn, &r.Scenario, &r.Date, &movesJSON, &r.FailedScores, &ended, &r.EndReason, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(movesJSON), &r.Moves); err != nil {
			return nil, fmt.Errorf("failed to decode moves for turn %d: %w", r.Turn, err)
		}
		r.GameID = gameID
		r.Ended = ended != 0
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScoreHistory returns the scoring outcomes of one attribute over time.
func (s *TurnStore) ScoreHistory(ctx context.Context, gameID uuid.UUID, entity, attribute string) ([]ScorePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.turn, t.date, COALESCE(s.judgment, ''), COALESCE(s.previous, ''), COALESCE(s.committed, ''), s.failed, s.error
		 FROM scores s JOIN turns t ON t.game_id = s.game_id AND t.turn = s.turn
		 WHERE s.game_id = ? AND s.entity = ? AND s.attribute = ?
		 ORDER BY s.turn`, gameID.String(), entity, attribute)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ScorePoint
	for rows.Next() {
		var (
			p      ScorePoint
			failed int
		)
		if err := rows.Scan(&p.Turn, &p.Date, &p.Judgment, &p.Previous, &p.Committed, &failed, &p.Error); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		p.Failed = failed != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func valueText(v *scenario.Value) any {
	if v == nil {
		return nil
	}
	return v.String()
}
