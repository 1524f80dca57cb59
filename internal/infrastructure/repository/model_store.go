package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainerrors "behaviorguard/internal/domain/errors"
)

// ModelArtifact is one persisted anomaly model, keyed by user.
type ModelArtifact struct {
	UserID      string
	Payload     []byte
	TrainedAt   time.Time
	SampleCount int
}

// ModelStore persists one trained model artifact per user. Save
// overwrites any prior artifact; concurrent trainings for the same user
// race under last-writer-wins.
type ModelStore struct {
	db *pgxpool.Pool
}

// NewModelStore creates a new model store.
func NewModelStore(db *pgxpool.Pool) *ModelStore {
	return &ModelStore{db: db}
}

// Save upserts the user's model artifact.
func (s *ModelStore) Save(ctx context.Context, artifact *ModelArtifact) error {
	query := `
		INSERT INTO anomaly_models (user_id, artifact, trained_at, sample_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			artifact = EXCLUDED.artifact,
			trained_at = EXCLUDED.trained_at,
			sample_count = EXCLUDED.sample_count`

	if _, err := s.db.Exec(ctx, query, artifact.UserID, artifact.Payload, artifact.TrainedAt, artifact.SampleCount); err != nil {
		return domainerrors.NewPersistenceError("failed to save model artifact").WithCause(err)
	}
	return nil
}

// Load returns the user's model artifact, or a model-not-found error.
func (s *ModelStore) Load(ctx context.Context, userID string) (*ModelArtifact, error) {
	query := `
		SELECT user_id, artifact, trained_at, sample_count
		FROM anomaly_models
		WHERE user_id = $1`

	var a ModelArtifact
	err := s.db.QueryRow(ctx, query, userID).Scan(&a.UserID, &a.Payload, &a.TrainedAt, &a.SampleCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.NewModelNotFoundError(userID)
		}
		return nil, domainerrors.NewPersistenceError("failed to load model artifact").WithCause(err)
	}
	return &a, nil
}
