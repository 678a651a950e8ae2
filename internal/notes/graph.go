package notes

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// syncGraph replaces the note's stored link and block rows with the fresh
// scan results, inside the caller's transaction. Every distinct target slug
// is first resolved against notes already present in the workspace; misses
// stay unresolved (ToNoteID nil) until the stub resolver binds them.
func syncGraph(tx *gorm.DB, ids IDProvider, workspaceID, noteID string, scan ScanResult) error {
	resolved, err := resolveSlugsToNoteIDs(tx, workspaceID, linkSlugs(scan.Links))
	if err != nil {
		return err
	}

	if err := tx.Where("from_note_id = ?", noteID).Delete(&NoteLink{}).Error; err != nil {
		return fmt.Errorf("notes: delete stale links: %w", err)
	}
	if err := tx.Where("note_id = ?", noteID).Delete(&NoteBlock{}).Error; err != nil {
		return fmt.Errorf("notes: delete stale blocks: %w", err)
	}

	if len(scan.Links) > 0 {
		rows := make([]NoteLink, 0, len(scan.Links))
		for _, ref := range scan.Links {
			id, err := ids.NewID()
			if err != nil {
				return fmt.Errorf("notes: link id: %w", err)
			}
			row := NoteLink{
				ID:          id,
				WorkspaceID: workspaceID,
				FromNoteID:  noteID,
				ToSlug:      ref.ToSlug,
				Alias:       ref.Alias,
				Raw:         ref.Raw,
			}
			if target, ok := resolved[ref.ToSlug]; ok {
				row.ToNoteID = &target
			}
			rows = append(rows, row)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("notes: insert links: %w", err)
		}
	}

	if len(scan.Blocks) > 0 {
		rows := make([]NoteBlock, 0, len(scan.Blocks))
		for _, ref := range scan.Blocks {
			id, err := ids.NewID()
			if err != nil {
				return fmt.Errorf("notes: block id: %w", err)
			}
			payload, err := json.Marshal(ref.Data)
			if err != nil {
				return fmt.Errorf("notes: encode block data: %w", err)
			}
			rows = append(rows, NoteBlock{
				ID:       id,
				NoteID:   noteID,
				Type:     ref.Type,
				DataJSON: string(payload),
				Ordinal:  ref.Ordinal,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("notes: insert blocks: %w", err)
		}
	}

	return nil
}

func linkSlugs(links []LinkRef) []string {
	slugs := make([]string, 0, len(links))
	for _, ref := range links {
		slugs = append(slugs, ref.ToSlug)
	}
	return slugs
}

// resolveSlugsToNoteIDs maps each slug that names an existing note in the
// workspace to that note's id. Slugs with no match are absent from the map.
func resolveSlugsToNoteIDs(tx *gorm.DB, workspaceID string, slugs []string) (map[string]string, error) {
	out := make(map[string]string, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}

	var rows []Note
	err := tx.Select("id", "slug").
		Where("workspace_id = ? AND slug IN ?", workspaceID, slugs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notes: resolve slugs: %w", err)
	}
	for _, row := range rows {
		out[row.Slug] = row.ID
	}
	return out, nil
}

// resolveStubLinks binds every unresolved link in the workspace waiting for
// the given slug to the newly created note. Runs exactly once per creation;
// the unresolved→resolved transition never reverses except via a rescan of
// the owning note.
func resolveStubLinks(tx *gorm.DB, workspaceID, slug, noteID string) error {
	err := tx.Model(&NoteLink{}).
		Where("workspace_id = ? AND to_slug = ? AND to_note_id IS NULL", workspaceID, slug).
		Update("to_note_id", noteID).Error
	if err != nil {
		return fmt.Errorf("notes: resolve stub links: %w", err)
	}
	return nil
}

// unbindLinksToNote reverts links pointing at a deleted note to stubs so no
// edge references a note id that no longer exists. The link rows themselves
// survive; a later creation of the same slug re-resolves them.
func unbindLinksToNote(tx *gorm.DB, workspaceID, noteID string) error {
	err := tx.Model(&NoteLink{}).
		Where("workspace_id = ? AND to_note_id = ?", workspaceID, noteID).
		Update("to_note_id", nil).Error
	if err != nil {
		return fmt.Errorf("notes: unbind links: %w", err)
	}
	return nil
}
