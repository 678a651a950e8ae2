package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/woodshedhq/woodshed/internal/notes"
	"github.com/woodshedhq/woodshed/internal/workspace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&workspace.Workspace{},
		&workspace.Membership{},
		&notes.Note{},
		&notes.Tag{},
		&notes.NoteTag{},
		&notes.NoteLink{},
		&notes.NoteBlock{},
	); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
