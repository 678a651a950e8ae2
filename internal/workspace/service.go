package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/woodshedhq/woodshed/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingWorkspaceID = errors.New("workspace identifier is required")
	errMissingUserID      = errors.New("user identifier is required")
	errNotAMember         = errors.New("caller is not a workspace member")
	noOpLogger            = zap.NewNop()
)

const (
	opServiceNew = "workspace.service.new"
	opCreate     = "workspace.create"
	opAddMember  = "workspace.add_member"
	opMembership = "workspace.membership"
	opTouch      = "workspace.touch"
)

// ServiceConfig describes the dependencies for the workspace service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues identifiers for new workspaces.
type IDProvider interface {
	NewID() (string, error)
}

// Service manages workspaces and memberships.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the workspace service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Validation(opServiceNew+".missing_database", errMissingDatabase)
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
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create persists a new workspace owned by the provided user.
func (s *Service) Create(ctx context.Context, name, ownerUserID string) (*Workspace, error) {
	if ownerUserID == "" {
		return nil, apperr.Validation(opCreate+".missing_user_id", errMissingUserID)
	}
	if s.idProvider == nil {
		return nil, apperr.Validation(opCreate+".missing_id_provider", errors.New("id provider is required"))
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opCreate, err)
	}

	now := s.clock().UTC().Unix()
	ws := &Workspace{
		ID:               id,
		Name:             name,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	member := &Membership{
		WorkspaceID:      id,
		UserID:           ownerUserID,
		Role:             RoleOwner,
		CreatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ws).Error; err != nil {
			return err
		}
		return tx.Create(member).Error
	})
	if txErr != nil {
		s.logError(opCreate, "persist_failed", txErr, zap.String("workspace_id", id))
		return nil, fmt.Errorf("%s: %w", opCreate, txErr)
	}

	return ws, nil
}

// AddMember records a membership with the given role, replacing any existing one.
func (s *Service) AddMember(ctx context.Context, workspaceID, userID string, role Role) error {
	if workspaceID == "" {
		return apperr.Validation(opAddMember+".missing_workspace_id", errMissingWorkspaceID)
	}
	if userID == "" {
		return apperr.Validation(opAddMember+".missing_user_id", errMissingUserID)
	}

	var ws Workspace
	err := s.db.WithContext(ctx).Where("id = ?", workspaceID).Take(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(opAddMember+".workspace_not_found", err)
	}
	if err != nil {
		s.logError(opAddMember, "workspace_select_failed", err, zap.String("workspace_id", workspaceID))
		return fmt.Errorf("%s: %w", opAddMember, err)
	}

	member := &Membership{
		WorkspaceID:      workspaceID,
		UserID:           userID,
		Role:             role,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Save(member).Error; err != nil {
		s.logError(opAddMember, "persist_failed", err,
			zap.String("workspace_id", workspaceID),
			zap.String("user_id", userID))
		return fmt.Errorf("%s: %w", opAddMember, err)
	}
	return nil
}

// Membership returns the caller's role in the workspace. A missing membership
// surfaces as a permission error so callers need not distinguish "no such
// workspace" from "not yours to see".
func (s *Service) Membership(ctx context.Context, workspaceID, userID string) (Role, error) {
	if workspaceID == "" {
		return "", apperr.Validation(opMembership+".missing_workspace_id", errMissingWorkspaceID)
	}
	if userID == "" {
		return "", apperr.Validation(opMembership+".missing_user_id", errMissingUserID)
	}

	var member Membership
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.Permission(opMembership+".not_a_member", errNotAMember)
	}
	if err != nil {
		s.logError(opMembership, "select_failed", err,
			zap.String("workspace_id", workspaceID),
			zap.String("user_id", userID))
		return "", fmt.Errorf("%s: %w", opMembership, err)
	}
	return member.Role, nil
}

// Touch bumps the workspace's updated timestamp after a successful write.
func (s *Service) Touch(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return apperr.Validation(opTouch+".missing_workspace_id", errMissingWorkspaceID)
	}
	err := s.db.WithContext(ctx).
		Model(&Workspace{}).
		Where("id = ?", workspaceID).
		Update("updated_at_s", s.clock().UTC().Unix()).Error
	if err != nil {
		s.logError(opTouch, "update_failed", err, zap.String("workspace_id", workspaceID))
		return fmt.Errorf("%s: %w", opTouch, err)
	}
	return nil
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
	s.logger.Error("workspace service error", attrs...)
}
