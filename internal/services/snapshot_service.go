package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/sqldesk/internal/models"
	apperrors "github.com/charlesng35/sqldesk/pkg/errors"
	"github.com/charlesng35/sqldesk/pkg/metrics"
)

const (
	defaultSnapshotListLimit = 50
	maxSnapshotListLimit     = 500
)

// ErrSnapshotNotFound indicates the requested snapshot does not exist.
var ErrSnapshotNotFound = apperrors.ErrNotFound.WithMessage("Snapshot not found")

// RegistryExporter is the part of the connection registry snapshots need.
type RegistryExporter interface {
	Export(ctx context.Context) ([]byte, error)
}

// SnapshotService records point-in-time exports of the registry in the database.
type SnapshotService struct {
	db       *gorm.DB
	registry RegistryExporter
}

// NewSnapshotService constructs a snapshot service.
func NewSnapshotService(db *gorm.DB, registry RegistryExporter) (*SnapshotService, error) {
	if db == nil {
		return nil, errors.New("snapshot service: db is required")
	}
	if registry == nil {
		return nil, errors.New("snapshot service: registry is required")
	}
	return &SnapshotService{db: db, registry: registry}, nil
}

// Create exports the registry and stores the result.
func (s *SnapshotService) Create(ctx context.Context, reason string) (*models.ConnectionSnapshot, error) {
	ctx = ensureContext(ctx)

	payload, err := s.registry.Export(ctx)
	if err != nil {
		metrics.Snapshots.WithLabelValues("failure").Inc()
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		metrics.Snapshots.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual"
	}

	snapshot := &models.ConnectionSnapshot{
		Reason:  reason,
		Count:   len(records),
		Payload: datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		metrics.Snapshots.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	metrics.Snapshots.WithLabelValues("success").Inc()
	return snapshot, nil
}

// List returns the most recent snapshots first, without payloads.
func (s *SnapshotService) List(ctx context.Context, limit int) ([]models.ConnectionSnapshot, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = defaultSnapshotListLimit
	}
	if limit > maxSnapshotListLimit {
		limit = maxSnapshotListLimit
	}

	var snapshots []models.ConnectionSnapshot
	err := s.db.WithContext(ctx).
		Omit("payload").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return snapshots, nil
}

// Get loads one snapshot including its payload.
func (s *SnapshotService) Get(ctx context.Context, id string) (*models.ConnectionSnapshot, error) {
	ctx = ensureContext(ctx)

	var snapshot models.ConnectionSnapshot
	err := s.db.WithContext(ctx).Take(&snapshot, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &snapshot, nil
}

// Prune deletes all but the newest keep snapshots and returns how many were removed.
// A non-positive keep disables pruning.
func (s *SnapshotService) Prune(ctx context.Context, keep int) (int64, error) {
	ctx = ensureContext(ctx)
	if keep <= 0 {
		return 0, nil
	}

	var retained []string
	err := s.db.WithContext(ctx).
		Model(&models.ConnectionSnapshot{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(keep).
		Pluck("id", &retained).Error
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}
	if len(retained) < keep {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Where("id NOT IN ?", retained).
		Delete(&models.ConnectionSnapshot{})
	if result.Error != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(result.Error)
	}
	return result.RowsAffected, nil
}
