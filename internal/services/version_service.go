// internal/services/version_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/database"
	"github.com/promptmint/promptmint-backend/internal/models"
)

// VersionService resolves the immutable content snapshot currently being
// sold for a prompt, synthesizing the first snapshot on demand.
type VersionService struct {
	db *gorm.DB
}

func NewVersionService(db *gorm.DB) *VersionService {
	return &VersionService{db: db}
}

// Resolve returns the highest-numbered snapshot for the prompt, creating
// version 1 from the prompt's current fields when none exists yet. It is
// idempotent and safe under concurrent callers: a duplicate-key result on
// insert means another caller won the race, so the winning row is returned
// instead of the error.
func (s *VersionService) Resolve(promptID uuid.UUID) (*models.PromptVersion, error) {
	return s.ResolveWithin(s.db, promptID)
}

// ResolveWithin runs the resolution against the given handle so callers
// already inside a transaction can participate in it.
func (s *VersionService) ResolveWithin(db *gorm.DB, promptID uuid.UUID) (*models.PromptVersion, error) {
	if snapshot, err := s.latest(db, promptID); err != nil {
		return nil, err
	} else if snapshot != nil {
		return snapshot, nil
	}

	var prompt models.Prompt
	if err := db.First(&prompt, "id = ?", promptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to load prompt: %w", err)
	}

	if prompt.Status != models.PromptStatusPublished {
		return nil, ErrPromptNotPublished
	}

	// Re-check right before insert: a concurrent buyer may have created the
	// snapshot between the first check and the prompt load.
	if snapshot, err := s.latest(db, promptID); err != nil {
		return nil, err
	} else if snapshot != nil {
		return snapshot, nil
	}

	candidate := models.PromptVersion{
		PromptID:    prompt.ID,
		Version:     1,
		Title:       prompt.Title,
		Description: prompt.Description,
		Content:     prompt.Content,
		PriceJPY:    prompt.PriceJPY,
	}

	if err := db.Create(&candidate).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// Lost the insert race; the unique index on (prompt_id, version)
			// guarantees exactly one row exists, so return the winner.
			winner, qerr := s.latest(db, promptID)
			if qerr != nil {
				return nil, qerr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("failed to create version snapshot: %w", err)
	}

	return &candidate, nil
}

func (s *VersionService) latest(db *gorm.DB, promptID uuid.UUID) (*models.PromptVersion, error) {
	var snapshot models.PromptVersion
	err := db.Where("prompt_id = ?", promptID).
		Order("version DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query version snapshots: %w", err)
	}
	return &snapshot, nil
}

// GetVersion loads one snapshot, for order-history detail screens.
func (s *VersionService) GetVersion(versionID uuid.UUID) (*models.PromptVersion, error) {
	var snapshot models.PromptVersion
	if err := s.db.First(&snapshot, "id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to load version snapshot: %w", err)
	}
	return &snapshot, nil
}
