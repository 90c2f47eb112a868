package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/scan"
)

// ErrScanNotFound is returned when no scan has the requested ID.
var ErrScanNotFound = errors.New("scan not found")

// ScanSummary is a scan row without its measurement data.
type ScanSummary struct {
	ID          string              `json:"id"`
	Kind        scan.Kind           `json:"kind"`
	Label       string              `json:"label,omitempty"`
	SampleCount int                 `json:"sample_count"`
	Statistic   aggregate.Statistic `json:"statistic"`
	Points      int                 `json:"points"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// StoredScan is a scan result together with its stored label.
type StoredScan struct {
	*scan.Result
	Label string `json:"label,omitempty"`
}

// SaveScan stores a completed scan result. Saving the same ID twice is an
// error.
func (db *DB) SaveScan(res *scan.Result) error {
	var (
		geom interface{}
		data interface{}
	)
	switch res.Kind {
	case scan.Kind1D:
		if res.Line == nil {
			return fmt.Errorf("1d scan %s has no line geometry", res.ID)
		}
		geom, data = res.Line, res.Values
	case scan.Kind2D:
		if res.Raster == nil {
			return fmt.Errorf("2d scan %s has no raster geometry", res.ID)
		}
		geom, data = res.Raster, res.Grid
	default:
		return fmt.Errorf("scan %s has unknown kind %q", res.ID, res.Kind)
	}

	geomJSON, err := json.Marshal(geom)
	if err != nil {
		return fmt.Errorf("failed to encode geometry: %w", err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode measurements: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO scans (
			scan_id, kind, geometry_json, sample_count, statistic,
			points, data_json, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, string(res.Kind), string(geomJSON), res.SampleCount, string(res.Statistic),
		res.Measurements(), string(dataJSON), res.StartedAt.UnixNano(), res.CompletedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan %s: %w", res.ID, err)
	}
	return nil
}

// GetScan loads the scan with the given ID.
func (db *DB) GetScan(id string) (*StoredScan, error) {
	var (
		kind, geomJSON, statistic, dataJSON, label string
		sampleCount                                int
		startedAt, completedAt                     int64
	)
	err := db.QueryRow(`
		SELECT kind, geometry_json, sample_count, statistic, data_json,
			started_at, completed_at, label
		FROM scans WHERE scan_id = ?`, id,
	).Scan(&kind, &geomJSON, &sampleCount, &statistic, &dataJSON, &startedAt, &completedAt, &label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scan %s: %w", id, err)
	}

	res := &scan.Result{
		ID:          id,
		Kind:        scan.Kind(kind),
		SampleCount: sampleCount,
		Statistic:   aggregate.Statistic(statistic),
		StartedAt:   time.Unix(0, startedAt).UTC(),
		CompletedAt: time.Unix(0, completedAt).UTC(),
	}
	switch res.Kind {
	case scan.Kind1D:
		res.Line = &geometry.Line{}
		if err := json.Unmarshal([]byte(geomJSON), res.Line); err != nil {
			return nil, fmt.Errorf("failed to decode geometry of scan %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &res.Values); err != nil {
			return nil, fmt.Errorf("failed to decode measurements of scan %s: %w", id, err)
		}
	case scan.Kind2D:
		res.Raster = &geometry.Raster{}
		if err := json.Unmarshal([]byte(geomJSON), res.Raster); err != nil {
			return nil, fmt.Errorf("failed to decode geometry of scan %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &res.Grid); err != nil {
			return nil, fmt.Errorf("failed to decode measurements of scan %s: %w", id, err)
		}
	default:
		return nil, fmt.Errorf("scan %s has unknown kind %q", id, kind)
	}
	return &StoredScan{Result: res, Label: label}, nil
}

// ListScans returns up to limit scans, most recently completed first. A
// non-positive limit returns every scan.
func (db *DB) ListScans(limit int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT scan_id, kind, label, sample_count, statistic, points,
			started_at, completed_at
		FROM scans ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	scans := []ScanSummary{}
	for rows.Next() {
		var (
			s                      ScanSummary
			kind, statistic        string
			startedAt, completedAt int64
		)
		if err := rows.Scan(&s.ID, &kind, &s.Label, &s.SampleCount, &statistic, &s.Points, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Kind = scan.Kind(kind)
		s.Statistic = aggregate.Statistic(statistic)
		s.StartedAt = time.Unix(0, startedAt).UTC()
		s.CompletedAt = time.Unix(0, completedAt).UTC()
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// SetScanLabel replaces the free-text label of a scan.
func (db *DB) SetScanLabel(id, label string) error {
	res, err := db.Exec(`UPDATE scans SET label = ? WHERE scan_id = ?`, label, id)
	if err != nil {
		return fmt.Errorf("failed to label scan %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// DeleteScan removes a scan.
func (db *DB) DeleteScan(id string) error {
	res, err := db.Exec(`DELETE FROM scans WHERE scan_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	return nil
}
