// internal/services/version_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/models"
)

func TestResolveCreatesFirstSnapshot(t *testing.T) {
	db := newTestDB(t)
	seller := createTestUser(t, db, "seller1", models.UserTypeSeller)
	prompt := createTestPrompt(t, db, seller.ID, "Blog outline generator", 1500)

	svc := NewVersionService(db)

	snapshot, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Version)
	assert.Equal(t, prompt.ID, snapshot.PromptID)
	assert.Equal(t, prompt.Title, snapshot.Title)
	assert.Equal(t, int64(1500), snapshot.PriceJPY)
}

func TestResolveIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	seller := createTestUser(t, db, "seller1", models.UserTypeSeller)
	prompt := createTestPrompt(t, db, seller.ID, "Blog outline generator", 1500)

	svc := NewVersionService(db)

	first, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)

	second, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.PromptVersion{}).
		Where("prompt_id = ?", prompt.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveSnapshotSurvivesPromptEdit(t *testing.T) {
	db := newTestDB(t)
	seller := createTestUser(t, db, "seller1", models.UserTypeSeller)
	prompt := createTestPrompt(t, db, seller.ID, "Blog outline generator", 1500)

	svc := NewVersionService(db)

	snapshot, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)

	// Editing the live prompt must not change the captured snapshot.
	require.NoError(t, db.Model(prompt).Update("price_jpy", 9999).Error)

	again, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ID, again.ID)
	assert.Equal(t, int64(1500), again.PriceJPY)
}

func TestResolveRejectsMissingAndUnpublished(t *testing.T) {
	db := newTestDB(t)
	seller := createTestUser(t, db, "seller1", models.UserTypeSeller)

	svc := NewVersionService(db)

	_, err := svc.Resolve(uuid.New())
	assert.ErrorIs(t, err, ErrPromptNotFound)

	draft := &models.Prompt{
		SellerID: seller.ID,
		Title:    "Unfinished",
		PriceJPY: 500,
		Status:   models.PromptStatusDraft,
	}
	require.NoError(t, db.Create(draft).Error)

	_, err = svc.Resolve(draft.ID)
	assert.ErrorIs(t, err, ErrPromptNotPublished)
}

func TestResolveRecoversFromInsertRace(t *testing.T) {
	db := newTestDB(t)
	seller := createTestUser(t, db, "seller1", models.UserTypeSeller)
	prompt := createTestPrompt(t, db, seller.ID, "Blog outline generator", 1500)

	// Simulate a competing buyer winning the insert race: a create callback
	// slips the (prompt_id, version=1) row in after the resolver's re-check
	// but before its own insert, forcing the duplicate-key path.
	var competitor models.PromptVersion
	injected := false
	err := db.Callback().Create().Before("gorm:create").Register("competing_snapshot", func(tx *gorm.DB) {
		if injected {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.PromptVersion); !ok {
			return
		}
		injected = true

		competitor = models.PromptVersion{
			PromptID: prompt.ID,
			Version:  1,
			Title:    prompt.Title,
			Content:  prompt.Content,
			PriceJPY: prompt.PriceJPY,
		}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(&competitor).Error; err != nil {
			t.Errorf("failed to insert competing snapshot: %v", err)
		}
	})
	require.NoError(t, err)

	svc := NewVersionService(db)

	snapshot, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)
	require.True(t, injected)

	// The loser must come back with the winner's row, and exactly one
	// version-1 snapshot may exist.
	assert.Equal(t, competitor.ID, snapshot.ID)
	assert.Equal(t, 1, snapshot.Version)

	var count int64
	require.NoError(t, db.Model(&models.PromptVersion{}).
		Where("prompt_id = ?", prompt.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveReturnsHighestVersion(t *testing.T) {
	db := newTestDB(t)
	seller := createTestUser(t, db, "seller1", models.UserTypeSeller)
	prompt := createTestPrompt(t, db, seller.ID, "Blog outline generator", 1500)

	for v := 1; v <= 3; v++ {
		require.NoError(t, db.Create(&models.PromptVersion{
			PromptID: prompt.ID,
			Version:  v,
			Title:    prompt.Title,
			Content:  prompt.Content,
			PriceJPY: prompt.PriceJPY,
		}).Error)
	}

	svc := NewVersionService(db)

	snapshot, err := svc.Resolve(prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Version)
}
