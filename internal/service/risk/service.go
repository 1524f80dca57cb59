// Package risk orchestrates anomaly model training and scoring. Both
// run on a bounded worker pool so a slow training job cannot stall
// connection handling elsewhere in the process.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"behaviorguard/internal/domain/event"
	domainerrors "behaviorguard/internal/domain/errors"
	"behaviorguard/internal/infrastructure/cache"
	"behaviorguard/internal/infrastructure/config"
	"behaviorguard/internal/infrastructure/repository"
	"behaviorguard/internal/service/anomaly"
	"behaviorguard/internal/service/features"
)

// Training uses pointer-movement events only; key and click events are
// too sparse for the speed/displacement features.
const trainingEventType = string(event.TypeMouseMove)

// EventReader loads a user's historical events from the relational store.
type EventReader interface {
	ListByUserAndType(ctx context.Context, userID, eventType string) ([]event.BehavioralEvent, error)
}

// ModelStore persists and retrieves per-user model artifacts.
type ModelStore interface {
	Save(ctx context.Context, artifact *repository.ModelArtifact) error
	Load(ctx context.Context, userID string) (*repository.ModelArtifact, error)
}

// ModelCache is an optional read-through cache in front of the store.
type ModelCache interface {
	Get(ctx context.Context, userID string) (*repository.ModelArtifact, error)
	Set(ctx context.Context, artifact *repository.ModelArtifact) error
}

// TrainReport is returned to the caller after a successful training run.
type TrainReport struct {
	Status             string `json:"status"`
	UserID             string `json:"user_id"`
	ModelRef           string `json:"model_ref"`
	RawEventsProcessed int    `json:"raw_events_processed"`
	FeatureRowsCreated int    `json:"feature_rows_created"`
}

// WindowScore is the anomaly score for one derived feature window.
type WindowScore struct {
	Window  int     `json:"window"`
	Score   float64 `json:"score"`
	Outlier bool    `json:"outlier"`
}

// Service trains and scores per-user anomaly models.
type Service struct {
	events    EventReader
	store     ModelStore
	cache     ModelCache
	extractor *features.Extractor
	cfg       config.RiskConfig
	logger    *zap.Logger
	workers   chan struct{}
}

// NewService creates a risk service. cache may be nil, in which case
// every model load goes to the store.
func NewService(events EventReader, store ModelStore, modelCache ModelCache, cfg config.RiskConfig, logger *zap.Logger) *Service {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		events:    events,
		store:     store,
		cache:     modelCache,
		extractor: features.NewExtractor(cfg.WindowSize),
		cfg:       cfg,
		logger:    logger.Named("risk"),
		workers:   make(chan struct{}, workers),
	}
}

// acquire blocks for a worker slot or until the caller's context ends.
func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.workers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domainerrors.NewInternalError("worker pool saturated").WithCause(ctx.Err())
	}
}

func (s *Service) release() {
	<-s.workers
}

// Train reads the user's historical events, derives feature vectors,
// trains a fresh isolation forest, and overwrites the stored model.
// Concurrent trainings for the same user race under last-writer-wins.
func (s *Service) Train(ctx context.Context, userID string) (*TrainReport, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	events, err := s.events.ListByUserAndType(ctx, userID, trainingEventType)
	if err != nil {
		return nil, domainerrors.NewPersistenceError("failed to load events").WithCause(err)
	}
	if len(events) < s.cfg.MinEvents {
		return nil, domainerrors.NewInsufficientDataError(
			"not enough behavioral data to train a model").WithDetails(map[string]interface{}{
			"events":   len(events),
			"required": s.cfg.MinEvents,
		})
	}

	vectors := s.extractor.Extract(events)
	forest, err := anomaly.Train(vectors, anomaly.Options{
		TreeCount:     s.cfg.TreeCount,
		SampleSize:    s.cfg.SampleSize,
		Contamination: s.cfg.Contamination,
		MinVectors:    s.cfg.MinVectors,
		Seed:          s.cfg.RandomSeed,
	})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(forest)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to serialize model").WithCause(err)
	}

	artifact := &repository.ModelArtifact{
		UserID:      userID,
		Payload:     payload,
		TrainedAt:   forest.TrainedAt,
		SampleCount: forest.SampleCount,
	}
	if err := s.store.Save(ctx, artifact); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, artifact)

	s.logger.Info("model trained",
		zap.String("user_id", userID),
		zap.Int("raw_events", len(events)),
		zap.Int("feature_rows", len(vectors)))

	return &TrainReport{
		Status:             "training_complete",
		UserID:             userID,
		ModelRef:           fmt.Sprintf("anomaly_models/%s", userID),
		RawEventsProcessed: len(events),
		FeatureRowsCreated: len(vectors),
	}, nil
}

// Predict scores the supplied events against the user's trained model,
// one score per derived feature window.
func (s *Service) Predict(ctx context.Context, userID string, events []event.BehavioralEvent) ([]WindowScore, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	artifact, err := s.loadArtifact(ctx, userID)
	if err != nil {
		return nil, err
	}

	var forest anomaly.Forest
	if err := json.Unmarshal(artifact.Payload, &forest); err != nil {
		return nil, domainerrors.NewInternalError("stored model artifact is corrupt").WithCause(err)
	}

	vectors := s.extractor.Extract(events)
	if len(vectors) == 0 {
		return nil, domainerrors.NewInsufficientDataError("no feature windows could be derived")
	}

	scores := make([]WindowScore, len(vectors))
	for i, v := range vectors {
		score := forest.Score(v)
		scores[i] = WindowScore{
			Window:  i,
			Score:   score,
			Outlier: forest.IsOutlier(score),
		}
	}
	return scores, nil
}

func (s *Service) loadArtifact(ctx context.Context, userID string) (*repository.ModelArtifact, error) {
	if s.cache != nil {
		artifact, err := s.cache.Get(ctx, userID)
		if err == nil {
			return artifact, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("model cache lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	artifact, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, artifact)
	return artifact, nil
}

// cacheSet is best effort; a cache failure never fails the request.
func (s *Service) cacheSet(ctx context.Context, artifact *repository.ModelArtifact) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, artifact); err != nil {
		s.logger.Warn("model cache write failed", zap.String("user_id", artifact.UserID), zap.Error(err))
	}
}
