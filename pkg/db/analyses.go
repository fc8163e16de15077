package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/cache"
	"github.com/alexis-pagnon/green-optimizer/pkg/urlutil"
)

var _ cache.Store = (*DB)(nil)

// ErrAnalysisNotFound is returned when no analysis matches an ID.
var ErrAnalysisNotFound = errors.New("analysis not found")

// Save stores rec as the newest analysis of key. Older analyses are kept so
// history can show them under their own model versions.
func (db *DB) Save(ctx context.Context, key string, rec cache.Record) error {
	if rec.Result == nil {
		return fmt.Errorf("failed to save analysis of %s: nil result", key)
	}
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	id := rec.Result.ID
	if id == "" {
		id = uuid.NewString()
	}
	schemaVersion := rec.Result.SchemaVersion
	if schemaVersion == 0 {
		schemaVersion = models.ResultSchemaVersion
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	urlID, err := insertURL(tx, key)
	if err != nil {
		return err
	}

	score := rec.Result.Score
	snap := rec.Result.Snapshot
	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (analysis_id, url_id, model_version, schema_version, overall_score,
			grade, confidence, total_bytes, request_count, result_json, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id) DO UPDATE SET
			result_json = excluded.result_json,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at,
			invalidated = 0
	`, id, urlID, score.ModelVersion, schemaVersion, score.OverallScore,
		score.Grade, string(score.Confidence), snap.TotalBytes, snap.RequestCount,
		string(payload), rec.StoredAt.UnixNano(), rec.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	return nil
}

// Load returns the newest valid analysis of key stored with the current
// result schema, or nil when there is none. Any model version matches; use
// ForModel to restrict it.
func (db *DB) Load(ctx context.Context, key string) (*cache.Record, error) {
	return db.load(ctx, key, "")
}

// ModelStore is a view of the analyses store that only loads results scored
// with one model version. Save and Delete behave as on DB.
type ModelStore struct {
	*DB
	version string
}

var _ cache.Store = (*ModelStore)(nil)

// ForModel returns a store whose Load skips analyses of other model versions,
// so a newer row of another model cannot hide a reusable one.
func (db *DB) ForModel(version string) *ModelStore {
	return &ModelStore{DB: db, version: version}
}

// Load returns the newest valid analysis of key scored with the store's model.
func (s *ModelStore) Load(ctx context.Context, key string) (*cache.Record, error) {
	return s.DB.load(ctx, key, s.version)
}

func (db *DB) load(ctx context.Context, key, modelVersion string) (*cache.Record, error) {
	var payload string
	var storedAt, expiresAt int64
	err := db.QueryRowContext(ctx, `
		SELECT a.result_json, a.stored_at, a.expires_at
		FROM analyses a
		JOIN urls u ON a.url_id = u.url_id
		WHERE u.normalized_url = ? AND a.invalidated = 0 AND a.schema_version = ?
			AND (? = '' OR a.model_version = ?)
		ORDER BY a.stored_at DESC
		LIMIT 1
	`, key, models.ResultSchemaVersion, modelVersion, modelVersion).Scan(&payload, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &cache.Record{
		Result:    &result,
		StoredAt:  time.Unix(0, storedAt).UTC(),
		ExpiresAt: time.Unix(0, expiresAt).UTC(),
	}, nil
}

// Delete marks every analysis of key invalidated. Rows stay for history.
func (db *DB) Delete(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE analyses SET invalidated = 1
		WHERE url_id IN (SELECT url_id FROM urls WHERE normalized_url = ?)
	`, key)
	if err != nil {
		return fmt.Errorf("failed to invalidate analyses: %w", err)
	}
	return nil
}

// AnalysisSummary is one row of the analysis history.
type AnalysisSummary struct {
	ID           string    `json:"id" yaml:"id"`
	URL          string    `json:"url" yaml:"url"`
	ModelVersion string    `json:"model_version" yaml:"model_version"`
	OverallScore float64   `json:"overall_score" yaml:"overall_score"`
	Grade        string    `json:"grade" yaml:"grade"`
	Confidence   string    `json:"confidence" yaml:"confidence"`
	TotalBytes   int64     `json:"total_bytes" yaml:"total_bytes"`
	RequestCount int       `json:"request_count" yaml:"request_count"`
	StoredAt     time.Time `json:"stored_at" yaml:"stored_at"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
	Invalidated  bool      `json:"invalidated" yaml:"invalidated"`
}

// HistoryFilter narrows ListAnalyses. Zero values match everything.
type HistoryFilter struct {
	URL          string
	ModelVersion string
	Limit        int
}

// ListAnalyses returns stored analyses, newest first.
func (db *DB) ListAnalyses(ctx context.Context, f HistoryFilter) ([]AnalysisSummary, error) {
	query := `
		SELECT a.analysis_id, u.normalized_url, a.model_version, a.overall_score,
		       COALESCE(a.grade, ''), COALESCE(a.confidence, ''), COALESCE(a.total_bytes, 0),
		       COALESCE(a.request_count, 0), a.stored_at, a.expires_at, a.invalidated
		FROM analyses a
		JOIN urls u ON a.url_id = u.url_id
		WHERE 1=1`
	var args []any

	if f.URL != "" {
		key, err := urlutil.NormalizeURL(f.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		query += " AND u.normalized_url = ?"
		args = append(args, key)
	}
	if f.ModelVersion != "" {
		query += " AND a.model_version = ?"
		args = append(args, f.ModelVersion)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY a.stored_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []AnalysisSummary
	for rows.Next() {
		var s AnalysisSummary
		var storedAt, expiresAt int64
		if err := rows.Scan(&s.ID, &s.URL, &s.ModelVersion, &s.OverallScore, &s.Grade, &s.Confidence,
			&s.TotalBytes, &s.RequestCount, &storedAt, &expiresAt, &s.Invalidated); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		s.StoredAt = time.Unix(0, storedAt).UTC()
		s.ExpiresAt = time.Unix(0, expiresAt).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetAnalysis returns one stored analysis by ID, invalidated or not.
func (db *DB) GetAnalysis(ctx context.Context, id string) (*models.AnalysisResult, error) {
	var payload string
	err := db.QueryRowContext(ctx, "SELECT result_json FROM analyses WHERE analysis_id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &result, nil
}

// LatestAnalysis returns the newest stored analysis of rawURL, invalidated or not.
func (db *DB) LatestAnalysis(ctx context.Context, rawURL string) (*models.AnalysisResult, error) {
	list, err := db.ListAnalyses(ctx, HistoryFilter{URL: rawURL, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no analysis for %s", ErrAnalysisNotFound, rawURL)
	}
	return db.GetAnalysis(ctx, list[0].ID)
}
