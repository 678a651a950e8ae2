package notes

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/woodshedhq/woodshed/internal/apperr"
	"gorm.io/gorm"
)

const (
	maxSlugLength   = 220
	maxSlugAttempts = 50
)

var (
	errEmptySlug          = errors.New("notes: slug normalizes to empty")
	errSlugSpaceExhausted = errors.New("notes: slug candidate space exhausted")

	nonSlugRunPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify normalizes arbitrary text into a workspace slug: lowercase, runs of
// characters outside [a-z0-9] collapsed to a single hyphen, leading/trailing
// hyphens trimmed, capped at 220 characters. Returns "" when nothing survives.
func Slugify(input string) string {
	lowered := strings.ToLower(input)
	hyphenated := nonSlugRunPattern.ReplaceAllString(lowered, "-")
	trimmed := strings.Trim(hyphenated, "-")
	if len(trimmed) > maxSlugLength {
		trimmed = strings.TrimRight(trimmed[:maxSlugLength], "-")
	}
	return trimmed
}

// allocateSlug probes the normalized base, then base-2, base-3, … against
// notes already stored in the workspace and returns the first free candidate.
// The probe is not atomic with the insert; the (workspace_id, slug) unique
// index remains the safety net for concurrent creations.
func allocateSlug(tx *gorm.DB, workspaceID, base string) (string, error) {
	normalized := Slugify(base)
	if normalized == "" {
		return "", apperr.Validation("notes.allocate_slug.empty_slug", errEmptySlug)
	}

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := normalized
		if attempt > 1 {
			suffix := fmt.Sprintf("-%d", attempt)
			if len(candidate)+len(suffix) > maxSlugLength {
				candidate = strings.TrimRight(candidate[:maxSlugLength-len(suffix)], "-")
			}
			candidate += suffix
		}

		var count int64
		err := tx.Model(&Note{}).
			Where("workspace_id = ? AND slug = ?", workspaceID, candidate).
			Count(&count).Error
		if err != nil {
			return "", fmt.Errorf("notes: probe slug %q: %w", candidate, err)
		}
		if count == 0 {
			return candidate, nil
		}
	}

	return "", apperr.Conflict("notes.allocate_slug.attempts_exhausted", errSlugSpaceExhausted)
}
