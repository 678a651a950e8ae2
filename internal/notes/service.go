package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/woodshedhq/woodshed/internal/apperr"
	"github.com/woodshedhq/woodshed/internal/workspace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingIDProvider  = errors.New("id provider is required")
	errMissingMemberships = errors.New("membership checker is required")
	errMissingToucher     = errors.New("workspace toucher is required")
	errMissingTitle       = errors.New("title is required")
	errSlugImmutable      = errors.New("slug cannot be changed after creation")
	errRoleForbidden      = errors.New("role does not permit this operation")
	errNoteNotFound       = errors.New("note not found in workspace")
	noOpLogger            = zap.NewNop()
)

const (
	opServiceNew   = "notes.service.new"
	opCreate       = "notes.create"
	opUpdate       = "notes.update"
	opFindOne      = "notes.find_one"
	opFindBySlug   = "notes.find_by_slug"
	opResolveLinks = "notes.resolve_links"
	opRemove       = "notes.remove"

	// createRetryBudget bounds re-allocation after a (workspace_id, slug)
	// unique violation from a concurrent creation.
	createRetryBudget = 3
)

// Memberships is the external capability check consulted before every operation.
type Memberships interface {
	Membership(ctx context.Context, workspaceID, userID string) (workspace.Role, error)
}

// WorkspaceToucher records workspace activity after a successful write.
type WorkspaceToucher interface {
	Touch(ctx context.Context, workspaceID string) error
}

// IDProvider issues identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required by the notes service.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Memberships Memberships
	Toucher     WorkspaceToucher
	Logger      *zap.Logger
}

// Service implements the note knowledge graph engine: CRUD over notes plus
// the derived link/block graph kept consistent on every write.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	memberships Memberships
	toucher     WorkspaceToucher
	logger      *zap.Logger
}

// NewService constructs the notes service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Validation(opServiceNew+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Validation(opServiceNew+".missing_id_provider", errMissingIDProvider)
	}
	if cfg.Memberships == nil {
		return nil, apperr.Validation(opServiceNew+".missing_memberships", errMissingMemberships)
	}
	if cfg.Toucher == nil {
		return nil, apperr.Validation(opServiceNew+".missing_toucher", errMissingToucher)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		memberships: cfg.Memberships,
		toucher:     cfg.Toucher,
		logger:      logger,
	}, nil
}

// CreateNoteRequest carries the caller-supplied fields for a new note.
type CreateNoteRequest struct {
	Title       string
	Slug        string
	ContentMD   string
	Visibility  string
	Frontmatter map[string]any
	Tags        []string
}

// Create persists a new note, derives its link/block graph, and binds any
// stub links elsewhere in the workspace that were waiting for its slug.
func (s *Service) Create(ctx context.Context, workspaceID, userID string, req CreateNoteRequest) (*HydratedNote, error) {
	wsID, err := NewWorkspaceID(workspaceID)
	if err != nil {
		return nil, apperr.Validation(opCreate+".invalid_workspace_id", err)
	}
	if _, err := NewUserID(userID); err != nil {
		return nil, apperr.Validation(opCreate+".invalid_user_id", err)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation(opCreate+".empty_title", errMissingTitle)
	}
	visibility, err := ParseVisibility(req.Visibility)
	if err != nil {
		return nil, apperr.Validation(opCreate+".invalid_visibility", err)
	}
	frontmatterJSON, err := encodeFrontmatter(req.Frontmatter)
	if err != nil {
		return nil, apperr.Validation(opCreate+".invalid_frontmatter", err)
	}

	role, err := s.memberships.Membership(ctx, wsID.String(), userID)
	if err != nil {
		return nil, err
	}
	if !role.CanWrite() {
		return nil, apperr.Permission(opCreate+".role_forbidden", errRoleForbidden)
	}

	// The slug probe is not atomic with the insert; on a duplicate-key
	// violation from a concurrent creation, re-allocate and try again.
	var note *Note
	var lastErr error
	for attempt := 0; attempt < createRetryBudget; attempt++ {
		note, lastErr = s.createOnce(ctx, wsID.String(), userID, title, visibility, frontmatterJSON, req)
		if lastErr == nil {
			break
		}
		if !isDuplicateKey(lastErr) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		s.logError(opCreate, "slug_conflict", lastErr, zap.String("workspace_id", wsID.String()))
		return nil, apperr.Conflict(opCreate+".slug_conflict", lastErr)
	}

	if err := s.toucher.Touch(ctx, wsID.String()); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, *note)
}

func (s *Service) createOnce(ctx context.Context, workspaceID, userID, title string, visibility Visibility, frontmatterJSON string, req CreateNoteRequest) (*Note, error) {
	var note Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := strings.TrimSpace(req.Slug)
		if base == "" {
			base = title
		}
		slug, err := allocateSlug(tx, workspaceID, base)
		if err != nil {
			return err
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return fmt.Errorf("%s: note id: %w", opCreate, err)
		}

		now := s.clock().UTC().Unix()
		note = Note{
			ID:               id,
			WorkspaceID:      workspaceID,
			Title:            title,
			Slug:             slug,
			ContentMD:        req.ContentMD,
			Visibility:       visibility,
			FrontmatterJSON:  frontmatterJSON,
			CreatedBy:        userID,
			UpdatedBy:        userID,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		if err := tx.Create(&note).Error; err != nil {
			return err
		}

		if err := syncGraph(tx, s.idProvider, workspaceID, note.ID, Scan(req.ContentMD)); err != nil {
			return err
		}
		if err := resolveStubLinks(tx, workspaceID, slug, note.ID); err != nil {
			return err
		}
		return s.replaceTags(tx, workspaceID, note.ID, req.Tags)
	})
	if txErr != nil {
		return nil, txErr
	}
	return &note, nil
}

// UpdateNoteRequest carries a partial update. Nil fields are left unchanged.
// A non-nil Slug is rejected unconditionally: slugs are immutable.
type UpdateNoteRequest struct {
	Title       *string
	Slug        *string
	ContentMD   *string
	Visibility  *string
	Frontmatter map[string]any
	Tags        *[]string
}

// Update applies a patch to a note. The derived link/block graph is rescanned
// only when the patch actually changes the markdown content.
func (s *Service) Update(ctx context.Context, workspaceID, noteID, userID string, patch UpdateNoteRequest) (*HydratedNote, error) {
	wsID, err := NewWorkspaceID(workspaceID)
	if err != nil {
		return nil, apperr.Validation(opUpdate+".invalid_workspace_id", err)
	}
	nID, err := NewNoteID(noteID)
	if err != nil {
		return nil, apperr.Validation(opUpdate+".invalid_note_id", err)
	}
	if patch.Slug != nil {
		return nil, apperr.Validation(opUpdate+".slug_immutable", errSlugImmutable)
	}

	role, err := s.memberships.Membership(ctx, wsID.String(), userID)
	if err != nil {
		return nil, err
	}
	if !role.CanWrite() {
		return nil, apperr.Permission(opUpdate+".role_forbidden", errRoleForbidden)
	}

	var note Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := loadNote(tx, wsID.String(), nID.String())
		if err != nil {
			return err
		}
		note = *loaded

		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return apperr.Validation(opUpdate+".empty_title", errMissingTitle)
			}
			note.Title = title
		}
		if patch.Visibility != nil {
			visibility, err := ParseVisibility(*patch.Visibility)
			if err != nil {
				return apperr.Validation(opUpdate+".invalid_visibility", err)
			}
			note.Visibility = visibility
		}
		if patch.Frontmatter != nil {
			encoded, err := encodeFrontmatter(patch.Frontmatter)
			if err != nil {
				return apperr.Validation(opUpdate+".invalid_frontmatter", err)
			}
			note.FrontmatterJSON = encoded
		}

		contentChanged := patch.ContentMD != nil && *patch.ContentMD != note.ContentMD
		if contentChanged {
			note.ContentMD = *patch.ContentMD
		}

		note.UpdatedBy = userID
		note.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Save(&note).Error; err != nil {
			return err
		}

		// Unchanged content leaves the derived graph valid; skip the rescan.
		if contentChanged {
			if err := syncGraph(tx, s.idProvider, wsID.String(), note.ID, Scan(note.ContentMD)); err != nil {
				return err
			}
		}

		if patch.Tags != nil {
			return s.replaceTags(tx, wsID.String(), note.ID, *patch.Tags)
		}
		return nil
	})
	if txErr != nil {
		if apperr.KindOf(txErr) == apperr.KindUnknown {
			s.logError(opUpdate, "transaction_failed", txErr,
				zap.String("workspace_id", wsID.String()),
				zap.String("note_id", nID.String()))
		}
		return nil, txErr
	}

	if err := s.toucher.Touch(ctx, wsID.String()); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, note)
}

// FindOne returns the hydrated note with the given id.
func (s *Service) FindOne(ctx context.Context, workspaceID, noteID, userID string) (*HydratedNote, error) {
	wsID, err := NewWorkspaceID(workspaceID)
	if err != nil {
		return nil, apperr.Validation(opFindOne+".invalid_workspace_id", err)
	}
	if _, err := s.memberships.Membership(ctx, wsID.String(), userID); err != nil {
		return nil, err
	}

	note, err := loadNote(s.db.WithContext(ctx), wsID.String(), noteID)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, *note)
}

// FindBySlug returns the hydrated note addressed by slug.
func (s *Service) FindBySlug(ctx context.Context, workspaceID, slug, userID string) (*HydratedNote, error) {
	wsID, err := NewWorkspaceID(workspaceID)
	if err != nil {
		return nil, apperr.Validation(opFindBySlug+".invalid_workspace_id", err)
	}
	if _, err := s.memberships.Membership(ctx, wsID.String(), userID); err != nil {
		return nil, err
	}

	var note Note
	err = s.db.WithContext(ctx).
		Where("workspace_id = ? AND slug = ?", wsID.String(), strings.TrimSpace(slug)).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(opFindBySlug+".note_not_found", errNoteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opFindBySlug, err)
	}
	return s.hydrate(ctx, note)
}

// ResolveLinks maps each requested slug to the identity of the note carrying
// it, or nil when no such note exists in the workspace. Editors use this to
// validate links in bulk instead of one lookup per link.
func (s *Service) ResolveLinks(ctx context.Context, workspaceID, userID string, slugs []string) (map[string]*NoteRef, error) {
	wsID, err := NewWorkspaceID(workspaceID)
	if err != nil {
		return nil, apperr.Validation(opResolveLinks+".invalid_workspace_id", err)
	}
	if _, err := s.memberships.Membership(ctx, wsID.String(), userID); err != nil {
		return nil, err
	}

	requested := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, raw := range slugs {
		slug := strings.TrimSpace(raw)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		requested = append(requested, slug)
	}

	results := make(map[string]*NoteRef, len(requested))
	for _, slug := range requested {
		results[slug] = nil
	}
	if len(requested) == 0 {
		return results, nil
	}

	var rows []Note
	err = s.db.WithContext(ctx).
		Select("id", "title", "slug").
		Where("workspace_id = ? AND slug IN ?", wsID.String(), requested).
		Find(&rows).Error
	if err != nil {
		s.logError(opResolveLinks, "query_failed", err, zap.String("workspace_id", wsID.String()))
		return nil, fmt.Errorf("%s: %w", opResolveLinks, err)
	}
	for _, row := range rows {
		results[row.Slug] = &NoteRef{ID: row.ID, Title: row.Title, Slug: row.Slug}
	}
	return results, nil
}

// Remove deletes a note together with its own link/block/tag rows. Links in
// other notes that pointed at it revert to stubs in the same transaction.
func (s *Service) Remove(ctx context.Context, workspaceID, noteID, userID string) error {
	wsID, err := NewWorkspaceID(workspaceID)
	if err != nil {
		return apperr.Validation(opRemove+".invalid_workspace_id", err)
	}
	nID, err := NewNoteID(noteID)
	if err != nil {
		return apperr.Validation(opRemove+".invalid_note_id", err)
	}

	role, err := s.memberships.Membership(ctx, wsID.String(), userID)
	if err != nil {
		return err
	}
	if !role.CanDelete() {
		return apperr.Permission(opRemove+".role_forbidden", errRoleForbidden)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := loadNote(tx, wsID.String(), nID.String())
		if err != nil {
			return err
		}
		if err := tx.Where("from_note_id = ?", note.ID).Delete(&NoteLink{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", note.ID).Delete(&NoteBlock{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", note.ID).Delete(&NoteTag{}).Error; err != nil {
			return err
		}
		if err := unbindLinksToNote(tx, wsID.String(), note.ID); err != nil {
			return err
		}
		return tx.Delete(note).Error
	})
	if txErr != nil {
		if apperr.KindOf(txErr) == apperr.KindUnknown {
			s.logError(opRemove, "transaction_failed", txErr,
				zap.String("workspace_id", wsID.String()),
				zap.String("note_id", nID.String()))
		}
		return txErr
	}

	return s.toucher.Touch(ctx, wsID.String())
}

func loadNote(tx *gorm.DB, workspaceID, noteID string) (*Note, error) {
	var note Note
	err := tx.Where("workspace_id = ? AND id = ?", workspaceID, noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("notes.load.note_not_found", errNoteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("notes: load note: %w", err)
	}
	return &note, nil
}

// replaceTags swaps the note's tag set, creating workspace tags on first use.
func (s *Service) replaceTags(tx *gorm.DB, workspaceID, noteID string, tags []string) error {
	if err := tx.Where("note_id = ?", noteID).Delete(&NoteTag{}).Error; err != nil {
		return fmt.Errorf("notes: delete note tags: %w", err)
	}

	seen := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		var tag Tag
		err := tx.Where("workspace_id = ? AND name = ?", workspaceID, name).Take(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			id, idErr := s.idProvider.NewID()
			if idErr != nil {
				return fmt.Errorf("notes: tag id: %w", idErr)
			}
			tag = Tag{ID: id, WorkspaceID: workspaceID, Name: name}
			if err := tx.Create(&tag).Error; err != nil {
				return fmt.Errorf("notes: create tag: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("notes: select tag: %w", err)
		}

		if err := tx.Create(&NoteTag{NoteID: noteID, TagID: tag.ID}).Error; err != nil {
			return fmt.Errorf("notes: create note tag: %w", err)
		}
	}
	return nil
}

// hydrate loads the note's tags, blocks, and both link directions.
func (s *Service) hydrate(ctx context.Context, note Note) (*HydratedNote, error) {
	frontmatter, err := note.Frontmatter()
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var tagNames []string
	err = db.Model(&Tag{}).
		Joins("JOIN note_tags ON note_tags.tag_id = tags.id").
		Where("note_tags.note_id = ?", note.ID).
		Order("tags.name").
		Pluck("tags.name", &tagNames).Error
	if err != nil {
		return nil, fmt.Errorf("notes: load tags: %w", err)
	}

	var blockRows []NoteBlock
	if err := db.Where("note_id = ?", note.ID).Order("ordinal").Find(&blockRows).Error; err != nil {
		return nil, fmt.Errorf("notes: load blocks: %w", err)
	}
	blocks := make([]BlockView, 0, len(blockRows))
	for _, row := range blockRows {
		data, err := row.Data()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, BlockView{Type: row.Type, Data: data, Ordinal: row.Ordinal})
	}

	var outgoingRows []NoteLink
	if err := db.Where("from_note_id = ?", note.ID).Order("id").Find(&outgoingRows).Error; err != nil {
		return nil, fmt.Errorf("notes: load outgoing links: %w", err)
	}
	outgoing := make([]LinkView, 0, len(outgoingRows))
	for _, row := range outgoingRows {
		outgoing = append(outgoing, LinkView{
			ToSlug:   row.ToSlug,
			ToNoteID: row.ToNoteID,
			Alias:    row.Alias,
			Raw:      row.Raw,
		})
	}

	var incomingRows []NoteLink
	err = db.Where("workspace_id = ? AND to_note_id = ?", note.WorkspaceID, note.ID).
		Order("id").Find(&incomingRows).Error
	if err != nil {
		return nil, fmt.Errorf("notes: load incoming links: %w", err)
	}
	incoming := make([]IncomingLinkView, 0, len(incomingRows))
	for _, row := range incomingRows {
		incoming = append(incoming, IncomingLinkView{
			FromNoteID: row.FromNoteID,
			Alias:      row.Alias,
			Raw:        row.Raw,
		})
	}

	return &HydratedNote{
		Note:        note,
		Frontmatter: frontmatter,
		Tags:        tagNames,
		Blocks:      blocks,
		Outgoing:    outgoing,
		Incoming:    incoming,
	}, nil
}

func encodeFrontmatter(frontmatter map[string]any) (string, error) {
	if frontmatter == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(frontmatter)
	if err != nil {
		return "", fmt.Errorf("notes: encode frontmatter: %w", err)
	}
	return string(encoded), nil
}

// isDuplicateKey matches both gorm's translated sentinel and the raw sqlite
// unique-violation text, since error translation depends on driver config.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
