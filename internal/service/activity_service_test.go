package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
)

type fakeActivityLogRepo struct {
	entries []models.ActivityLog
}

func (r *fakeActivityLogRepo) Create(_ context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(r.entries) + 1)
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeActivityLogRepo) ListRecent(_ context.Context, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	return r.entries[:limit], nil
}

func TestActivityServiceRecordPersistsEntry(t *testing.T) {
	repo := &fakeActivityLogRepo{}
	svc := NewActivityService(repo, nil, "", testLogger())

	entityID := uint(7)
	svc.Record(context.Background(), ActivityEntry{
		Actor:      ActivityActor{ID: 1, Role: models.RoleStudent},
		Action:     "quiz.attempt_started",
		EntityType: "quiz_attempt",
		EntityID:   &entityID,
		Metadata: map[string]interface{}{
			"attempt_number": 1,
			"":               "dropped",
			"nil_value":      nil,
		},
	})

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, "quiz.attempt_started", entry.Action)
	require.Equal(t, uint(1), entry.ActorID)
	require.Equal(t, &entityID, entry.EntityID)
	require.Contains(t, entry.Metadata, "attempt_number")
	require.NotContains(t, entry.Metadata, "")
	require.NotContains(t, entry.Metadata, "nil_value")
}

func TestActivityServiceRecent(t *testing.T) {
	repo := &fakeActivityLogRepo{}
	svc := NewActivityService(repo, nil, "", testLogger())

	for i := 0; i < 3; i++ {
		svc.Record(context.Background(), ActivityEntry{
			Actor:      ActivityActor{ID: uint(i + 1), Role: models.RoleStudent},
			Action:     "quiz.attempt_started",
			EntityType: "quiz_attempt",
		})
	}

	entries, err := svc.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
