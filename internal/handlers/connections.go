package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sqldesk/internal/models"
	"github.com/charlesng35/sqldesk/internal/services"
	appErrors "github.com/charlesng35/sqldesk/pkg/errors"
	"github.com/charlesng35/sqldesk/pkg/response"
)

const maxImportBytes = 10 << 20

// ConnectionHandler exposes the connection registry over HTTP.
type ConnectionHandler struct {
	registry *services.ConnectionRegistry
	now      func() time.Time
}

// NewConnectionHandler constructs a ConnectionHandler.
func NewConnectionHandler(registry *services.ConnectionRegistry) (*ConnectionHandler, error) {
	if registry == nil {
		return nil, errors.New("connection handler: registry is required")
	}
	return &ConnectionHandler{registry: registry, now: time.Now}, nil
}

type createConnectionRequest struct {
	Type           string `json:"type" validate:"required"`
	ConnectionName string `json:"connectionName" validate:"required,max=255"`
	DatabaseName   string `json:"databaseName" validate:"max=255"`
	Host           string `json:"host" validate:"required,max=255"`
	Port           int    `json:"port" validate:"gte=0,lte=65535"`
	Username       string `json:"username" validate:"required,max=255"`
	Password       string `json:"password"`
	Environment    string `json:"environment" validate:"omitempty,max=32"`
}

type updateConnectionRequest struct {
	Type           *string `json:"type"`
	ConnectionName *string `json:"connectionName" validate:"omitnil,min=1,max=255"`
	DatabaseName   *string `json:"databaseName" validate:"omitempty,max=255"`
	Host           *string `json:"host" validate:"omitnil,min=1,max=255"`
	Port           *int    `json:"port"`
	Username       *string `json:"username" validate:"omitnil,min=1,max=255"`
	Password       *string `json:"password"`
	Environment    *string `json:"environment"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// List returns every connection, or only those of ?type=, with per-type counts in meta.
func (h *ConnectionHandler) List(c *gin.Context) {
	var connections []models.Connection
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		dbType, ok := models.ParseDatabaseType(raw)
		if !ok {
			response.Error(c, appErrors.NewBadRequest("unsupported database type "+raw))
			return
		}
		connections = h.registry.ListByKind(dbType)
	} else {
		connections = h.registry.List()
	}

	response.SuccessWithMeta(c, http.StatusOK, connections, &response.Meta{
		Total:  len(connections),
		Counts: countsMeta(h.registry.Counts()),
	})
}

// Summary returns the number of connections per database type.
func (h *ConnectionHandler) Summary(c *gin.Context) {
	counts := countsMeta(h.registry.Counts())
	total := 0
	for _, n := range counts {
		total += n
	}

	response.Success(c, http.StatusOK, gin.H{
		"total":      total,
		"counts":     counts,
		"load_state": h.registry.LoadState(),
	})
}

// Get returns a single connection.
func (h *ConnectionHandler) Get(c *gin.Context) {
	conn, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, conn)
}

// Create adds a connection at the end of its type's ordering.
func (h *ConnectionHandler) Create(c *gin.Context) {
	var req createConnectionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateConnectionInput{
		Type:           parseType(req.Type),
		ConnectionName: strings.TrimSpace(req.ConnectionName),
		DatabaseName:   strings.TrimSpace(req.DatabaseName),
		Host:           strings.TrimSpace(req.Host),
		Port:           req.Port,
		Username:       strings.TrimSpace(req.Username),
		Password:       req.Password,
		Environment:    parseEnvironment(req.Environment),
	}

	conn, err := h.registry.Add(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, conn)
}

// Update applies a partial update to a connection.
func (h *ConnectionHandler) Update(c *gin.Context) {
	var req updateConnectionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateConnectionInput{
		ConnectionName: trimmed(req.ConnectionName),
		DatabaseName:   trimmed(req.DatabaseName),
		Host:           trimmed(req.Host),
		Port:           req.Port,
		Username:       trimmed(req.Username),
		Password:       req.Password,
	}
	if req.Type != nil {
		t := parseType(*req.Type)
		input.Type = &t
	}
	if req.Environment != nil {
		env := parseEnvironment(*req.Environment)
		input.Environment = &env
	}

	conn, err := h.registry.Update(requestContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, conn)
}

// Delete removes a connection.
func (h *ConnectionHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Reorder sets the display order of one database type from the submitted ID list.
func (h *ConnectionHandler) Reorder(c *gin.Context) {
	var req reorderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ordered, err := h.registry.Reorder(requestContext(c), parseType(c.Param("type")), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ordered, &response.Meta{Total: len(ordered)})
}

// Import appends the connections from an uploaded export file. The file may be sent as
// the raw request body or as the multipart field "file".
func (h *ConnectionHandler) Import(c *gin.Context) {
	payload, err := readImportPayload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	imported, err := h.registry.Import(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, imported, &response.Meta{
		Total:  len(imported),
		Counts: countsMeta(h.registry.Counts()),
	})
}

// Export downloads every connection, passwords included, as a JSON file.
func (h *ConnectionHandler) Export(c *gin.Context) {
	data, err := h.registry.Export(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, services.ExportFilename(h.now()), "application/json", data)
}

func readImportPayload(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, appErrors.NewBadRequest("multipart field \"file\" is required")
		}
		file, err := header.Open()
		if err != nil {
			return nil, appErrors.ErrBadRequest.WithInternal(err)
		}
		defer file.Close()
		return readLimited(file)
	}

	if c.Request.Body == nil {
		return nil, appErrors.NewBadRequest("import file is empty")
	}
	return readLimited(c.Request.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return nil, appErrors.ErrBadRequest.WithInternal(err)
	}
	if len(data) > maxImportBytes {
		return nil, appErrors.NewBadRequest("import file is too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, appErrors.NewBadRequest("import file is empty")
	}
	return data, nil
}

// parseType accepts any casing of a supported type and passes unknown values through so
// the registry rejects them with its own error.
func parseType(value string) models.DatabaseType {
	if t, ok := models.ParseDatabaseType(value); ok {
		return t
	}
	return models.DatabaseType(strings.TrimSpace(value))
}

func parseEnvironment(value string) models.Environment {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	if env, ok := models.ParseEnvironment(value); ok {
		return env
	}
	return models.Environment(strings.TrimSpace(value))
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

func countsMeta(counts map[models.DatabaseType]int) map[string]int {
	out := make(map[string]int, len(counts))
	for t, n := range counts {
		out[string(t)] = n
	}
	return out
}
