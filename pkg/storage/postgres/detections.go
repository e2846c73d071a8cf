package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// DetectionStore implements storage.DetectionStore on PostgreSQL. Every
// query is scoped to the owning user so one account can never read or
// delete another's detections.
type DetectionStore struct {
	db  *sql.DB
	ops opTracker
}

// NewDetectionStore creates a detection store on the given connection;
// metrics may be nil
func NewDetectionStore(db *sql.DB, metrics *observability.Metrics) *DetectionStore {
	return &DetectionStore{db: db, ops: opTracker{metrics: metrics}}
}

func (s *DetectionStore) CreateDetection(ctx context.Context, detection *storage.Detection) (err error) {
	defer s.ops.track("create_detection", &err)()
	query := `
		INSERT INTO detections (id, user_id, image_url, model, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query,
		detection.ID,
		detection.UserID,
		detection.ImageURL,
		detection.Model,
		detection.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create detection: %w", err)
	}
	return nil
}

func (s *DetectionStore) GetDetection(ctx context.Context, id, userID string) (detection *storage.Detection, err error) {
	defer s.ops.track("get_detection", &err)()
	query := `
		SELECT id, user_id, image_url, model, created_at
		FROM detections
		WHERE id = $1 AND user_id = $2
	`

	detection = &storage.Detection{}
	err = s.db.QueryRowContext(ctx, query, id, userID).Scan(
		&detection.ID,
		&detection.UserID,
		&detection.ImageURL,
		&detection.Model,
		&detection.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}
	return detection, nil
}

func (s *DetectionStore) ListDetections(ctx context.Context, userID string) (detections []*storage.Detection, err error) {
	defer s.ops.track("list_detections", &err)()
	query := `
		SELECT id, user_id, image_url, model, created_at
		FROM detections
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	detections = make([]*storage.Detection, 0)
	for rows.Next() {
		var detection storage.Detection
		if err := rows.Scan(
			&detection.ID,
			&detection.UserID,
			&detection.ImageURL,
			&detection.Model,
			&detection.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, &detection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detections: %w", err)
	}
	return detections, nil
}

func (s *DetectionStore) DeleteDetection(ctx context.Context, id, userID string) (err error) {
	defer s.ops.track("delete_detection", &err)()
	result, err := s.db.ExecContext(ctx, `DELETE FROM detections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete detection: %w", err)
	}
	return requireRow(result)
}
