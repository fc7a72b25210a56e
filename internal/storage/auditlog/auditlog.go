// Package auditlog appends one compressed JSONL entry per committed turn,
// one file per game, so a game can be replayed after its save expires.
package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

const fileExt = ".jsonl.zst"

// Entry is one audited turn.
type Entry struct {
	GameID    uuid.UUID         `json:"game_id"`
	Scenario  string            `json:"scenario"`
	Record    state.TurnRecord  `json:"record"`
	Entities  scenario.Entities `json:"entities"` // after commit
	Ended     bool              `json:"ended,omitempty"`
	EndReason string            `json:"end_reason,omitempty"`
	WrittenAt time.Time         `json:"written_at"`
}

// Writer is an engine observer writing to <dir>/<game id>.jsonl.zst.
// Each entry is its own zstd frame, so every write is complete on disk.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the audit file for a game.
func (w *Writer) Path(gameID uuid.UUID) string {
	return filepath.Join(w.dir, gameID.String()+fileExt)
}

func (w *Writer) TurnCommitted(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
	entry := Entry{
		GameID:    snap.ID,
		Record:    rec,
		Entities:  snap.Entities,
		Ended:     snap.Ended,
		EndReason: snap.EndReason,
		WrittenAt: time.Now().UTC(),
	}
	if snap.Scenario != nil {
		entry.Scenario = snap.Scenario.Name
	}
	return w.Write(entry)
}

// Write appends entry to its game's file.
func (w *Writer) Write(entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audit dir: %w", err)
	}
	f, err := os.OpenFile(w.Path(entry.GameID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	bw := bufio.NewWriter(enc)
	if _, err := bw.Write(b); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to flush audit entry: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	return f.Sync()
}

// ReadAll decodes every entry in the file at path, in write order.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode reads entries from a zstd-compressed JSONL stream.
func Decode(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return out, fmt.Errorf("failed to decode audit entry %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("failed to read audit file: %w", err)
	}
	return out, nil
}
