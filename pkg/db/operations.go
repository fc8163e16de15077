package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/alexis-pagnon/green-optimizer/pkg/urlutil"
)

// InsertURL normalizes and inserts a URL, returning the url_id.
// If the URL already exists, returns the existing url_id.
func (db *DB) InsertURL(rawURL string) (int64, error) {
	normalized, err := urlutil.NormalizeURL(rawURL)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	return insertURL(db.DB, normalized)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func insertURL(q querier, normalized string) (int64, error) {
	var existingID int64
	err := q.QueryRow("SELECT url_id FROM urls WHERE normalized_url = ?", normalized).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing URL: %w", err)
	}

	parsed, err := url.Parse(normalized)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}

	result, err := q.Exec(`
		INSERT INTO urls (normalized_url, scheme, domain, path)
		VALUES (?, ?, ?, ?)
	`, normalized, parsed.Scheme, parsed.Hostname(), parsed.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to insert URL: %w", err)
	}

	urlID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get URL ID: %w", err)
	}
	return urlID, nil
}

// GetURLID returns the url_id for a URL, or sql.ErrNoRows wrapped when unknown.
func (db *DB) GetURLID(rawURL string) (int64, error) {
	normalized, err := urlutil.NormalizeURL(rawURL)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	var urlID int64
	err = db.QueryRow("SELECT url_id FROM urls WHERE normalized_url = ?", normalized).Scan(&urlID)
	if err != nil {
		return 0, fmt.Errorf("failed to get URL ID: %w", err)
	}
	return urlID, nil
}

// Access is one capture attempt.
type Access struct {
	Engine     string
	ErrorType  string
	DurationMs int64
	Success    bool
}

// RecordAccess records a capture attempt in url_accesses.
func (db *DB) RecordAccess(urlID int64, a Access) error {
	_, err := db.Exec(`
		INSERT INTO url_accesses (url_id, engine, error_type, duration_ms, success)
		VALUES (?, ?, ?, ?, ?)
	`, urlID, a.Engine, a.ErrorType, a.DurationMs, a.Success)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// AccessRecord represents a stored capture attempt.
type AccessRecord struct {
	AccessID   int64
	AccessedAt time.Time
	Engine     string
	ErrorType  string
	DurationMs int64
	Success    bool
}

// GetLastAccess returns the most recent access record for a URL.
func (db *DB) GetLastAccess(urlID int64) (*AccessRecord, error) {
	var record AccessRecord
	err := db.QueryRow(`
		SELECT access_id, accessed_at, engine, error_type, duration_ms, success
		FROM url_accesses
		WHERE url_id = ?
		ORDER BY access_id DESC
		LIMIT 1
	`, urlID).Scan(&record.AccessID, &record.AccessedAt, &record.Engine, &record.ErrorType, &record.DurationMs, &record.Success)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last access: %w", err)
	}
	return &record, nil
}

// AccessStats summarizes the capture attempts of a URL.
type AccessStats struct {
	Total   int
	Failed  int
	ByError map[string]int
}

// GetAccessStats counts attempts and failures per error type for a URL.
func (db *DB) GetAccessStats(urlID int64) (*AccessStats, error) {
	rows, err := db.Query(`
		SELECT COALESCE(error_type, ''), success, COUNT(*)
		FROM url_accesses
		WHERE url_id = ?
		GROUP BY error_type, success
	`, urlID)
	if err != nil {
		return nil, fmt.Errorf("failed to query access stats: %w", err)
	}
	defer rows.Close()

	stats := &AccessStats{ByError: make(map[string]int)}
	for rows.Next() {
		var errorType string
		var success bool
		var count int
		if err := rows.Scan(&errorType, &success, &count); err != nil {
			return nil, fmt.Errorf("failed to scan access stats: %w", err)
		}
		stats.Total += count
		if !success {
			stats.Failed += count
			stats.ByError[errorType] += count
		}
	}
	return stats, rows.Err()
}

// ArtifactInfo is a pointer to a file written for an analysis.
type ArtifactInfo struct {
	ArtifactID  int64
	AnalysisID  string
	Kind        string
	ContentHash string
	FilePath    string
	SizeBytes   int64
}

// InsertArtifact inserts or updates the artifact of one kind for an analysis.
func (db *DB) InsertArtifact(urlID int64, a ArtifactInfo) (int64, error) {
	_, err := db.Exec(`
		INSERT INTO artifacts (url_id, analysis_id, kind, content_hash, file_path, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id, kind) DO UPDATE SET
			content_hash = excluded.content_hash,
			file_path = excluded.file_path,
			size_bytes = excluded.size_bytes
	`, urlID, a.AnalysisID, a.Kind, a.ContentHash, a.FilePath, a.SizeBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert artifact: %w", err)
	}
	var id int64
	err = db.QueryRow("SELECT artifact_id FROM artifacts WHERE analysis_id = ? AND kind = ?", a.AnalysisID, a.Kind).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get artifact ID: %w", err)
	}
	return id, nil
}

// GetArtifactPath returns the file path of one artifact kind for an analysis.
func (db *DB) GetArtifactPath(analysisID, kind string) (string, error) {
	var filePath string
	err := db.QueryRow(`
		SELECT file_path FROM artifacts WHERE analysis_id = ? AND kind = ?
	`, analysisID, kind).Scan(&filePath)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("artifact %s not found for analysis %s", kind, analysisID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get artifact path: %w", err)
	}
	return filePath, nil
}

// ListArtifacts returns every artifact recorded for a URL, newest first.
func (db *DB) ListArtifacts(urlID int64) ([]ArtifactInfo, error) {
	rows, err := db.Query(`
		SELECT artifact_id, analysis_id, kind, content_hash, file_path, size_bytes
		FROM artifacts
		WHERE url_id = ?
		ORDER BY artifact_id DESC
	`, urlID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []ArtifactInfo
	for rows.Next() {
		var a ArtifactInfo
		if err := rows.Scan(&a.ArtifactID, &a.AnalysisID, &a.Kind, &a.ContentHash, &a.FilePath, &a.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// Run is one analyze invocation.
type Run struct {
	RunID        int64
	CreatedAt    time.Time
	URLCount     int
	SuccessCount int
	FailedCount  int
	ModelVersion string
	OutputPath   string
}

// CreateRun records the start of a batch.
func (db *DB) CreateRun(urlCount int, modelVersion, outputPath string) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO runs (url_count, model_version, output_path)
		VALUES (?, ?, ?)
	`, urlCount, modelVersion, outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return runID, nil
}

// UpdateRunStats records the outcome of a batch.
func (db *DB) UpdateRunStats(runID int64, successCount, failedCount int) error {
	_, err := db.Exec(`
		UPDATE runs SET success_count = ?, failed_count = ? WHERE run_id = ?
	`, successCount, failedCount, runID)
	if err != nil {
		return fmt.Errorf("failed to update run stats: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT run_id, created_at, url_count, success_count, failed_count,
		       COALESCE(model_version, ''), COALESCE(output_path, '')
		FROM runs
		ORDER BY run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.URLCount, &r.SuccessCount, &r.FailedCount, &r.ModelVersion, &r.OutputPath); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
