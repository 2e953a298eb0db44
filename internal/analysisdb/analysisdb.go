// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package analysisdb archives completed analyses in SQLite. The
// recommendation index is memory-only; on startup the service streams
// this archive back through the ingest path to rebuild it.
package analysisdb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/cadenza-audio/cadenza/internal/recommend"
)

// Archive is the SQLite-backed analysis store.
type Archive struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ recommend.AnalysisSource = (*Archive)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	audio_id     INTEGER PRIMARY KEY,
	user_id      INTEGER NOT NULL,
	tempo        REAL    NOT NULL DEFAULT 0,
	musical_key  TEXT    NOT NULL DEFAULT '',
	genres       TEXT    NOT NULL DEFAULT '[]',
	moods        TEXT    NOT NULL DEFAULT '[]',
	status       TEXT    NOT NULL,
	created_at   INTEGER NOT NULL,
	embedding    BLOB,
	model_id     TEXT    NOT NULL DEFAULT '',
	fingerprint  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses(user_id);
`

// Open opens (or creates) the archive at path. Use ":memory:" in tests.
func Open(path string, logger zerolog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open analysis archive at %s: %w", path, err)
	}
	// The archive sees concurrent writes from the event router and one
	// streaming read at startup; a single connection sidesteps SQLite's
	// writer locking.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Archive{db: db, logger: logger}, nil
}

// Save upserts one analysis, with its embedding when present.
func (a *Archive) Save(ctx context.Context, e recommend.ReplayEntry) error {
	genres, err := json.Marshal(tagsOrEmpty(e.Analysis.Genres))
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}
	moods, err := json.Marshal(tagsOrEmpty(e.Analysis.Moods))
	if err != nil {
		return fmt.Errorf("marshal moods: %w", err)
	}

	var blob []byte
	if e.Embedding != nil {
		blob = encodeVector(e.Embedding)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO analyses
			(audio_id, user_id, tempo, musical_key, genres, moods, status,
			 created_at, embedding, model_id, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(audio_id) DO UPDATE SET
			user_id     = excluded.user_id,
			tempo       = excluded.tempo,
			musical_key = excluded.musical_key,
			genres      = excluded.genres,
			moods       = excluded.moods,
			status      = excluded.status,
			created_at  = excluded.created_at,
			embedding   = excluded.embedding,
			model_id    = excluded.model_id,
			fingerprint = excluded.fingerprint`,
		e.Analysis.AudioID, e.Analysis.UserID, e.Analysis.Tempo,
		e.Analysis.Key, string(genres), string(moods),
		e.Analysis.Status.String(), e.Analysis.CreatedAt.UnixNano(),
		blob, e.ModelID, e.Fingerprint)
	if err != nil {
		return fmt.Errorf("save analysis %d: %w", e.Analysis.AudioID, err)
	}
	return nil
}

// Delete removes an archived analysis. Idempotent.
func (a *Archive) Delete(ctx context.Context, audioID int64) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM analyses WHERE audio_id = ?`, audioID); err != nil {
		return fmt.Errorf("delete analysis %d: %w", audioID, err)
	}
	return nil
}

// StreamCompleted invokes fn for every completed analysis in ascending
// audio ID order. Rows that fail to decode are logged and skipped.
func (a *Archive) StreamCompleted(ctx context.Context, fn func(recommend.ReplayEntry) error) error {
	rows, err := a.db.QueryContext(ctx, `
		SELECT audio_id, user_id, tempo, musical_key, genres, moods,
		       created_at, embedding, model_id, fingerprint
		FROM analyses
		WHERE status = ?
		ORDER BY audio_id`,
		recommend.StatusCompleted.String())
	if err != nil {
		return fmt.Errorf("stream completed analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         recommend.ReplayEntry
			genres    string
			moods     string
			createdNs int64
			blob      []byte
		)
		err := rows.Scan(&e.Analysis.AudioID, &e.Analysis.UserID,
			&e.Analysis.Tempo, &e.Analysis.Key, &genres, &moods,
			&createdNs, &blob, &e.ModelID, &e.Fingerprint)
		if err != nil {
			a.logger.Warn().Err(err).Msg("archive row scan failed; skipping")
			continue
		}

		if err := json.Unmarshal([]byte(genres), &e.Analysis.Genres); err != nil {
			a.logger.Warn().Err(err).Int64("audio_id", e.Analysis.AudioID).
				Msg("archive genres corrupt; skipping row")
			continue
		}
		if err := json.Unmarshal([]byte(moods), &e.Analysis.Moods); err != nil {
			a.logger.Warn().Err(err).Int64("audio_id", e.Analysis.AudioID).
				Msg("archive moods corrupt; skipping row")
			continue
		}

		e.Analysis.Status = recommend.StatusCompleted
		e.Analysis.CreatedAt = time.Unix(0, createdNs).UTC()
		if len(blob) > 0 {
			e.Embedding = decodeVector(blob)
		}

		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of archived analyses.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// encodeVector packs float32s little-endian for BLOB storage.
func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// decodeVector unpacks a little-endian float32 BLOB.
func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// tagsOrEmpty keeps archived tag columns as JSON arrays, never null.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
