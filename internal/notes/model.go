package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidWorkspaceID indicates that a workspace identifier is empty or exceeds storage bounds.
	ErrInvalidWorkspaceID = errors.New("notes: invalid workspace id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// Visibility enumerates who may see a note beyond its author.
type Visibility string

const (
	// VisibilityPrivate restricts the note to its author.
	VisibilityPrivate Visibility = "private"
	// VisibilityWorkspace shares the note with every workspace member.
	VisibilityWorkspace Visibility = "workspace"
)

// ParseVisibility validates a raw visibility string; empty defaults to workspace.
func ParseVisibility(value string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(value))) {
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	case VisibilityWorkspace, "":
		return VisibilityWorkspace, nil
	default:
		return "", fmt.Errorf("notes: unknown visibility %q", value)
	}
}

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// WorkspaceID represents a validated workspace identifier.
type WorkspaceID string

// NewWorkspaceID validates raw input and returns a WorkspaceID.
func NewWorkspaceID(rawInput string) (WorkspaceID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidWorkspaceID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidWorkspaceID, maxIdentifierLength)
	}
	return WorkspaceID(trimmed), nil
}

// String returns the underlying string identifier.
func (id WorkspaceID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note models the persisted markdown note. The (workspace_id, slug) pair is
// unique and the slug is immutable after creation.
type Note struct {
	ID               string     `gorm:"column:id;primaryKey;size:190;not null"`
	WorkspaceID      string     `gorm:"column:workspace_id;size:190;not null;uniqueIndex:idx_notes_workspace_slug,priority:1"`
	Title            string     `gorm:"column:title;size:500;not null"`
	Slug             string     `gorm:"column:slug;size:220;not null;uniqueIndex:idx_notes_workspace_slug,priority:2"`
	ContentMD        string     `gorm:"column:content_md;type:text;not null"`
	Visibility       Visibility `gorm:"column:visibility;size:32;not null;default:'workspace'"`
	FrontmatterJSON  string     `gorm:"column:frontmatter_json;type:text;not null;default:'{}'"`
	CreatedBy        string     `gorm:"column:created_by;size:190;not null"`
	UpdatedBy        string     `gorm:"column:updated_by;size:190;not null"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64      `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Frontmatter decodes the stored frontmatter payload.
func (n *Note) Frontmatter() (map[string]any, error) {
	if strings.TrimSpace(n.FrontmatterJSON) == "" {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(n.FrontmatterJSON), &out); err != nil {
		return nil, fmt.Errorf("notes: decode frontmatter: %w", err)
	}
	return out, nil
}

// Tag names are unique per workspace.
type Tag struct {
	ID          string `gorm:"column:id;primaryKey;size:190;not null"`
	WorkspaceID string `gorm:"column:workspace_id;size:190;not null;uniqueIndex:idx_tags_workspace_name,priority:1"`
	Name        string `gorm:"column:name;size:190;not null;uniqueIndex:idx_tags_workspace_name,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// NoteTag joins notes to tags.
type NoteTag struct {
	NoteID string `gorm:"column:note_id;primaryKey;size:190;not null"`
	TagID  string `gorm:"column:tag_id;primaryKey;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (NoteTag) TableName() string {
	return "note_tags"
}

// NoteLink is a directed wiki-link edge owned by its source note. ToNoteID is
// nil while no note with ToSlug exists in the workspace (a stub link); the
// stub resolver binds it when such a note is created.
type NoteLink struct {
	ID          string  `gorm:"column:id;primaryKey;size:190;not null"`
	WorkspaceID string  `gorm:"column:workspace_id;size:190;not null;index:idx_note_links_workspace_to_slug,priority:1"`
	FromNoteID  string  `gorm:"column:from_note_id;size:190;not null;uniqueIndex:idx_note_links_from_to_slug,priority:1"`
	ToSlug      string  `gorm:"column:to_slug;size:220;not null;uniqueIndex:idx_note_links_from_to_slug,priority:2;index:idx_note_links_workspace_to_slug,priority:2"`
	ToNoteID    *string `gorm:"column:to_note_id;size:190;index:idx_note_links_to_note"`
	Alias       string  `gorm:"column:alias;size:500;not null;default:''"`
	Raw         string  `gorm:"column:raw;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (NoteLink) TableName() string {
	return "note_links"
}

// NoteBlock is a typed block discovered inside a note's markdown. Fully
// derived: rows are replaced wholesale on every rescan, never patched.
type NoteBlock struct {
	ID       string `gorm:"column:id;primaryKey;size:190;not null"`
	NoteID   string `gorm:"column:note_id;size:190;not null;index:idx_note_blocks_note"`
	Type     string `gorm:"column:type;size:64;not null"`
	DataJSON string `gorm:"column:data_json;type:text;not null;default:'{}'"`
	Ordinal  int    `gorm:"column:ordinal;not null"`
}

// TableName provides the explicit table binding for GORM.
func (NoteBlock) TableName() string {
	return "note_blocks"
}

// Data decodes the stored block payload into its flat key/value form.
func (b *NoteBlock) Data() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(b.DataJSON) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(b.DataJSON), &out); err != nil {
		return nil, fmt.Errorf("notes: decode block data: %w", err)
	}
	return out, nil
}

// BlockView is the hydrated form of a NoteBlock.
type BlockView struct {
	Type    string            `json:"type"`
	Data    map[string]string `json:"data"`
	Ordinal int               `json:"order"`
}

// LinkView is the hydrated form of an outgoing NoteLink.
type LinkView struct {
	ToSlug   string  `json:"to_slug"`
	ToNoteID *string `json:"to_note_id"`
	Alias    string  `json:"alias,omitempty"`
	Raw      string  `json:"raw"`
}

// IncomingLinkView describes a link from another note pointing at this one.
type IncomingLinkView struct {
	FromNoteID string `json:"from_note_id"`
	Alias      string `json:"alias,omitempty"`
	Raw        string `json:"raw"`
}

// NoteRef is the minimal identity triple returned by link resolution.
type NoteRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// HydratedNote bundles a note with its derived graph state.
type HydratedNote struct {
	Note        Note               `json:"note"`
	Frontmatter map[string]any     `json:"frontmatter"`
	Tags        []string           `json:"tags"`
	Blocks      []BlockView        `json:"blocks"`
	Outgoing    []LinkView         `json:"outgoing_links"`
	Incoming    []IncomingLinkView `json:"incoming_links"`
}
