package service

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// AnalyticsService derives statistics from the stored event logs. Nothing is
// cached, so results always equal a recount.
type AnalyticsService struct {
	store history.Store
}

// NewAnalyticsService creates an analytics service over store.
func NewAnalyticsService(store history.Store) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// RepositoryEvents returns the raw event log of a repository.
func (s *AnalyticsService) RepositoryEvents(ctx context.Context, repositoryID string) (*models.RepositoryEvents, error) {
	events, err := s.store.RepositoryEvents(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("repository events: %w", err)
	}
	return events, nil
}

// RepositoryStatistics folds a repository's event log into statistics.
func (s *AnalyticsService) RepositoryStatistics(ctx context.Context, repositoryID string) (models.RepositoryStatistics, error) {
	events, err := s.RepositoryEvents(ctx, repositoryID)
	if err != nil {
		return models.RepositoryStatistics{}, err
	}
	return history.Recount(*events), nil
}

// TaskStatistics folds the history of one task.
func (s *AnalyticsService) TaskStatistics(ctx context.Context, taskID string) (models.TaskStatistics, error) {
	versions, err := s.store.ListVersions(ctx, taskID)
	if err != nil {
		return models.TaskStatistics{}, err
	}
	changes, err := s.store.ListChanges(ctx, taskID, 0)
	if err != nil {
		return models.TaskStatistics{}, fmt.Errorf("list changes: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, taskID, 0)
	if err != nil {
		return models.TaskStatistics{}, fmt.Errorf("list answers: %w", err)
	}
	return history.TaskStatistics(taskID, len(versions), changes, answers), nil
}
