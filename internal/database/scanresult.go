package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nao1215/osintnexus/internal/model"
)

// ScanRecord is one stored module run.
type ScanRecord struct {
	ID        int64
	ProjectID int64
	ScanID    string
	Module    string
	// Input is the target the module ran against.
	Input model.Target
	// Output is the JSON encoding of the module's entities and relations.
	Output    json.RawMessage
	Status    model.Status
	Error     string
	Elapsed   time.Duration
	CreatedAt time.Time
}

type scanOutput struct {
	Entities  []model.Entity   `json:"entities"`
	Relations []model.Relation `json:"connections"`
}

// SaveScanResult stores one module result of scan scanID.
func (s *Store) SaveScanResult(ctx context.Context, projectID int64, scanID string, target model.Target, result model.ScanResult) (int64, error) {
	input, err := json.Marshal(target)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize scan input: %w", err)
	}
	output, err := json.Marshal(scanOutput{Entities: result.Entities, Relations: result.Relations})
	if err != nil {
		return 0, fmt.Errorf("failed to serialize scan output: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_results (project_id, scan_id, module_name, input_data, output_data, status, error_message, execution_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, scanID, result.Module, string(input), string(output),
		string(result.Status), result.Error, result.Elapsed.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan result: %w", err)
	}
	return res.LastInsertId()
}

// ListScanResults returns the most recent scan results of a project, newest
// first. A limit of zero or less returns all of them.
func (s *Store) ListScanResults(ctx context.Context, projectID int64, limit int) ([]ScanRecord, error) {
	query := `SELECT id, project_id, scan_id, module_name, input_data, output_data, status, error_message, execution_time, created_at
	FROM scan_results WHERE project_id = ? ORDER BY id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var (
			r             ScanRecord
			input, output string
			status        string
			elapsed       float64
			created       string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.ScanID, &r.Module, &input, &output,
			&status, &r.Error, &elapsed, &created); err != nil {
			return nil, fmt.Errorf("failed to read scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(input), &r.Input); err != nil {
			return nil, fmt.Errorf("failed to parse scan input: %w", err)
		}
		r.Output = json.RawMessage(output)
		r.Status = model.Status(status)
		r.Elapsed = time.Duration(elapsed * float64(time.Second))
		r.CreatedAt = parseTimestamp(created)
		records = append(records, r)
	}
	return records, rows.Err()
}
