package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sqldesk/internal/services"
	appErrors "github.com/charlesng35/sqldesk/pkg/errors"
	"github.com/charlesng35/sqldesk/pkg/response"
	appValidator "github.com/charlesng35/sqldesk/pkg/validator"
)

// SnapshotHandler exposes stored registry snapshots.
type SnapshotHandler struct {
	svc *services.SnapshotService
}

// NewSnapshotHandler constructs a SnapshotHandler.
func NewSnapshotHandler(svc *services.SnapshotService) (*SnapshotHandler, error) {
	if svc == nil {
		return nil, errors.New("snapshot handler: service is required")
	}
	return &SnapshotHandler{svc: svc}, nil
}

type createSnapshotRequest struct {
	Reason string `json:"reason" validate:"max=64"`
}

// List returns snapshot metadata, newest first.
func (h *SnapshotHandler) List(c *gin.Context) {
	snapshots, err := h.svc.List(requestContext(c), parseIntQuery(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, snapshots, &response.Meta{Total: len(snapshots)})
}

// Create records a snapshot of the current registry.
func (h *SnapshotHandler) Create(c *gin.Context) {
	var req createSnapshotRequest
	if c.Request.ContentLength != 0 && !bindAndValidate(c, &req) {
		return
	}

	snapshot, err := h.svc.Create(requestContext(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, snapshot)
}

// Download returns the snapshot payload in the export file format.
func (h *SnapshotHandler) Download(c *gin.Context) {
	id := c.Param("id")
	if err := appValidator.ValidateVar(id, "required,uuid"); err != nil {
		response.Error(c, appErrors.NewBadRequest("snapshot id must be a UUID"))
		return
	}

	snapshot, err := h.svc.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("sql-connections-snapshot-%s.json", snapshot.CreatedAt.UTC().Format("2006-01-02-150405"))
	response.Attachment(c, filename, "application/json", snapshot.Payload)
}
