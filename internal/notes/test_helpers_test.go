package notes

import (
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/woodshedhq/woodshed/internal/workspace"
	"gorm.io/gorm"
)

// sequentialIDGenerator issues lexically increasing identifiers so stored row
// order is deterministic in tests.
type sequentialIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%06d", g.next), nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:woodshed_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&workspace.Workspace{},
		&workspace.Membership{},
		&Note{},
		&Tag{},
		&NoteTag{},
		&NoteLink{},
		&NoteBlock{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	workspaceService, err := workspace.NewService(workspace.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &sequentialIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct workspace service: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:    db,
		Clock:       clock,
		IDProvider:  &sequentialIDGenerator{},
		Memberships: workspaceService,
		Toucher:     workspaceService,
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	return service, db
}

func seedWorkspace(t *testing.T, db *gorm.DB, workspaceID, ownerUserID string) {
	t.Helper()

	now := time.Unix(1700000000, 0).UTC().Unix()
	ws := workspace.Workspace{ID: workspaceID, Name: workspaceID, CreatedAtSeconds: now, UpdatedAtSeconds: now}
	if err := db.Create(&ws).Error; err != nil {
		t.Fatalf("failed to seed workspace: %v", err)
	}
	seedMember(t, db, workspaceID, ownerUserID, workspace.RoleOwner)
}

func seedMember(t *testing.T, db *gorm.DB, workspaceID, userID string, role workspace.Role) {
	t.Helper()

	member := workspace.Membership{
		WorkspaceID:      workspaceID,
		UserID:           userID,
		Role:             role,
		CreatedAtSeconds: time.Unix(1700000000, 0).UTC().Unix(),
	}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("failed to seed membership: %v", err)
	}
}

func seedNote(t *testing.T, db *gorm.DB, workspaceID, noteID, title, slug string) {
	t.Helper()

	now := time.Unix(1700000000, 0).UTC().Unix()
	note := Note{
		ID:               noteID,
		WorkspaceID:      workspaceID,
		Title:            title,
		Slug:             slug,
		ContentMD:        "",
		Visibility:       VisibilityWorkspace,
		FrontmatterJSON:  "{}",
		CreatedBy:        "seed",
		UpdatedBy:        "seed",
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("failed to seed note: %v", err)
	}
}
