package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/sqldesk/internal/kvstore"
	"github.com/charlesng35/sqldesk/internal/models"
	apperrors "github.com/charlesng35/sqldesk/pkg/errors"
	"github.com/charlesng35/sqldesk/pkg/logger"
	"github.com/charlesng35/sqldesk/pkg/metrics"
)

// DefaultStorageKey is the store key holding the whole serialised collection. It matches
// the key the browser client used for its local storage.
const DefaultStorageKey = "sql-editor-connections"

// LoadState describes the outcome of the last Load.
type LoadState string

const (
	LoadStateUnloaded    LoadState = "unloaded"
	LoadStateEmpty       LoadState = "empty"
	LoadStateLoaded      LoadState = "loaded"
	LoadStateCorrupt     LoadState = "corrupt"
	LoadStateUnavailable LoadState = "unavailable"
)

// Degraded reports whether the registry started empty because the store could not be read.
func (s LoadState) Degraded() bool {
	return s == LoadStateCorrupt || s == LoadStateUnavailable
}

// ChangeAction names a committed registry mutation.
type ChangeAction string

const (
	ChangeAdd     ChangeAction = "add"
	ChangeUpdate  ChangeAction = "update"
	ChangeDelete  ChangeAction = "delete"
	ChangeReorder ChangeAction = "reorder"
	ChangeImport  ChangeAction = "import"
	ChangeClear   ChangeAction = "clear"
)

// ChangeEvent is delivered to listeners after a mutation has been persisted.
type ChangeEvent struct {
	Action ChangeAction                `json:"action"`
	Type   models.DatabaseType         `json:"type,omitempty"`
	IDs    []string                    `json:"ids,omitempty"`
	Total  int                         `json:"total"`
	Counts map[models.DatabaseType]int `json:"counts"`
}

// CreateConnectionInput describes a connection to add. ID and order are always assigned
// by the registry.
type CreateConnectionInput struct {
	Type           models.DatabaseType
	ConnectionName string
	DatabaseName   string
	Host           string
	Port           int
	Username       string
	Password       string
	Environment    models.Environment
	CreatedAt      *time.Time
	LastUsed       *time.Time
}

// UpdateConnectionInput carries a partial update; nil fields are left unchanged.
type UpdateConnectionInput struct {
	Type           *models.DatabaseType
	ConnectionName *string
	DatabaseName   *string
	Host           *string
	Port           *int
	Username       *string
	Password       *string
	Environment    *models.Environment
}

// RegistryOption customises the ConnectionRegistry.
type RegistryOption func(*ConnectionRegistry)

// WithStorageKey overrides the store key the collection is saved under.
func WithStorageKey(key string) RegistryOption {
	return func(r *ConnectionRegistry) {
		if key = strings.TrimSpace(key); key != "" {
			r.key = key
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *ConnectionRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides how new connection IDs are minted.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *ConnectionRegistry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithChangeListener registers a callback invoked after every committed mutation.
func WithChangeListener(fn func(ChangeEvent)) RegistryOption {
	return func(r *ConnectionRegistry) {
		if fn != nil {
			r.listeners = append(r.listeners, fn)
		}
	}
}

// WithLogger overrides the registry logger.
func WithLogger(log *zap.Logger) RegistryOption {
	return func(r *ConnectionRegistry) {
		if log != nil {
			r.log = log
		}
	}
}

// ConnectionRegistry is the single owner of the connection collection. Every mutation
// rebuilds the full collection, writes it to the store and only then swaps it in, so
// readers never observe unsaved state. Writers from other processes sharing the same
// store are not coordinated; the last write wins.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	store       kvstore.Store
	key         string
	connections []models.Connection
	state       LoadState

	now       func() time.Time
	newID     func() string
	listeners []func(ChangeEvent)
	log       *zap.Logger
}

// NewConnectionRegistry constructs an empty registry over store. Call Load to read
// the persisted collection.
func NewConnectionRegistry(store kvstore.Store, opts ...RegistryOption) (*ConnectionRegistry, error) {
	if store == nil {
		return nil, errors.New("connection registry: store is required")
	}

	r := &ConnectionRegistry{
		store: store,
		key:   DefaultStorageKey,
		state: LoadStateUnloaded,
		now:   time.Now,
		newID: func() string {
			return "conn-" + uuid.NewString()
		},
		log: logger.WithModule("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Load replaces the in-memory collection with the persisted one. A missing key yields an
// empty registry; an unreadable store or undecodable payload also yields an empty
// registry, with the condition reported through the returned state and logged.
func (r *ConnectionRegistry) Load(ctx context.Context) LoadState {
	ctx = ensureContext(ctx)

	payload, found, err := r.store.Get(ctx, r.key)

	var (
		state       LoadState
		connections []models.Connection
	)
	switch {
	case err != nil:
		state = LoadStateUnavailable
		r.log.Warn("connection store unavailable; starting empty", zap.String("key", r.key), zap.Error(err))
	case !found || len(strings.TrimSpace(string(payload))) == 0:
		state = LoadStateEmpty
	default:
		loose, decodeErr := DecodeLooseConnections(payload)
		if decodeErr != nil {
			state = LoadStateCorrupt
			r.log.Warn("stored connections unreadable; starting empty", zap.String("key", r.key), zap.Error(decodeErr))
			break
		}
		connections = r.repair(loose, nil)
		state = LoadStateLoaded
	}

	r.mu.Lock()
	r.connections = connections
	r.state = state
	r.mu.Unlock()

	updateConnectionGauge(countByType(connections))
	r.log.Info("connections loaded", zap.String("state", string(state)), zap.Int("count", len(connections)))
	return state
}

// LoadState returns the outcome of the last Load.
func (r *ConnectionRegistry) LoadState() LoadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Add appends a connection at the end of its type's ordering.
func (r *ConnectionRegistry) Add(ctx context.Context, input CreateConnectionInput) (*models.Connection, error) {
	if !input.Type.Valid() {
		r.record(ChangeAdd, "rejected")
		return nil, apperrors.ErrInvalidConnection.WithMessage(fmt.Sprintf("unsupported database type %q", input.Type))
	}
	env := input.Environment
	if env == "" {
		env = models.EnvironmentDev
	}
	if !env.Valid() {
		r.record(ChangeAdd, "rejected")
		return nil, apperrors.ErrInvalidConnection.WithMessage(fmt.Sprintf("unsupported environment %q", input.Environment))
	}
	if err := requireIdentity(&input.ConnectionName, &input.Host, &input.Username); err != nil {
		r.record(ChangeAdd, "rejected")
		return nil, err
	}

	var created models.Connection
	err := r.mutate(ctx, ChangeAdd, func(current []models.Connection) ([]models.Connection, ChangeEvent, error) {
		now := r.now()
		created = models.Connection{
			ID:             r.newID(),
			Type:           input.Type,
			ConnectionName: input.ConnectionName,
			DatabaseName:   input.DatabaseName,
			Host:           input.Host,
			Port:           input.Port,
			Username:       input.Username,
			Password:       input.Password,
			Environment:    env,
			Order:          len(filterByType(current, input.Type)),
			CreatedAt:      timeOr(input.CreatedAt, now),
			LastUsed:       timeOr(input.LastUsed, now),
		}
		if created.Port <= 0 || created.Port > 65535 {
			created.Port = input.Type.DefaultPort()
		}

		next := append(current, created)
		return next, ChangeEvent{Type: created.Type, IDs: []string{created.ID}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update merges the non-nil fields of input onto the connection with the given ID and
// refreshes its last-used time. Nothing else changes: a connection moved to another type
// keeps its order until that type is next reordered. Unknown IDs fail with
// ErrConnectionNotFound.
func (r *ConnectionRegistry) Update(ctx context.Context, id string, input UpdateConnectionInput) (*models.Connection, error) {
	if err := validateUpdate(input); err != nil {
		r.record(ChangeUpdate, "rejected")
		return nil, err
	}

	var updated models.Connection
	err := r.mutate(ctx, ChangeUpdate, func(current []models.Connection) ([]models.Connection, ChangeEvent, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, ChangeEvent{}, apperrors.ErrConnectionNotFound
		}

		conn := current[idx]
		if input.Type != nil {
			conn.Type = *input.Type
		}
		if input.ConnectionName != nil {
			conn.ConnectionName = *input.ConnectionName
		}
		if input.DatabaseName != nil {
			conn.DatabaseName = *input.DatabaseName
		}
		if input.Host != nil {
			conn.Host = *input.Host
		}
		if input.Port != nil {
			conn.Port = *input.Port
		}
		if input.Username != nil {
			conn.Username = *input.Username
		}
		if input.Password != nil {
			conn.Password = *input.Password
		}
		if input.Environment != nil {
			conn.Environment = *input.Environment
		}
		conn.LastUsed = r.now()

		current[idx] = conn
		updated = conn
		return current, ChangeEvent{Type: conn.Type, IDs: []string{conn.ID}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the connection with the given ID. Orders of the remaining connections
// are left as they are; gaps close on the next Reorder.
func (r *ConnectionRegistry) Delete(ctx context.Context, id string) error {
	return r.mutate(ctx, ChangeDelete, func(current []models.Connection) ([]models.Connection, ChangeEvent, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, ChangeEvent{}, apperrors.ErrConnectionNotFound
		}
		removed := current[idx]
		next := append(current[:idx:idx], current[idx+1:]...)
		return next, ChangeEvent{Type: removed.Type, IDs: []string{removed.ID}}, nil
	})
}

// Reorder assigns order = position for every connection of dbType following ids. ids must
// list each connection of that type exactly once; anything else is rejected with
// ErrInvalidReorder and nothing changes. Connections of other types are untouched.
func (r *ConnectionRegistry) Reorder(ctx context.Context, dbType models.DatabaseType, ids []string) ([]models.Connection, error) {
	if !dbType.Valid() {
		r.record(ChangeReorder, "rejected")
		return nil, apperrors.ErrInvalidConnection.WithMessage(fmt.Sprintf("unsupported database type %q", dbType))
	}

	err := r.mutate(ctx, ChangeReorder, func(current []models.Connection) ([]models.Connection, ChangeEvent, error) {
		positions, err := permutationPositions(current, dbType, ids)
		if err != nil {
			return nil, ChangeEvent{}, err
		}

		now := r.now()
		for i := range current {
			pos, ok := positions[current[i].ID]
			if !ok || current[i].Type != dbType {
				continue
			}
			current[i].Order = pos
			current[i].LastUsed = now
		}
		return current, ChangeEvent{Type: dbType, IDs: append([]string(nil), ids...)}, nil
	})
	if err != nil {
		return nil, err
	}
	return r.ListByKind(dbType), nil
}

// Import decodes payload, which must be a JSON array, repairs every element and appends
// the results. A non-array payload fails with ErrInvalidImport and imports nothing.
func (r *ConnectionRegistry) Import(ctx context.Context, payload []byte) ([]models.Connection, error) {
	loose, err := DecodeLooseConnections(payload)
	if err != nil {
		r.record(ChangeImport, "rejected")
		return nil, err
	}
	return r.ImportRecords(ctx, loose)
}

// ImportRecords repairs and appends already decoded records. Existing connections are
// never deduplicated against; imported IDs that are missing or already taken are
// replaced with fresh ones.
func (r *ConnectionRegistry) ImportRecords(ctx context.Context, records []LooseConnection) ([]models.Connection, error) {
	var imported []models.Connection
	err := r.mutate(ctx, ChangeImport, func(current []models.Connection) ([]models.Connection, ChangeEvent, error) {
		imported = r.repair(records, current)

		ids := make([]string, len(imported))
		for i, conn := range imported {
			ids[i] = conn.ID
		}
		return append(current, imported...), ChangeEvent{IDs: ids}, nil
	})
	if err != nil {
		return nil, err
	}
	return imported, nil
}

// Clear removes the stored collection entirely.
func (r *ConnectionRegistry) Clear(ctx context.Context) error {
	ctx = ensureContext(ctx)

	r.mu.Lock()
	if err := r.store.Delete(ctx, r.key); err != nil {
		r.mu.Unlock()
		r.record(ChangeClear, "persist_error")
		return apperrors.ErrPersistenceFailed.WithInternal(err)
	}
	removed := make([]string, len(r.connections))
	for i, conn := range r.connections {
		removed[i] = conn.ID
	}
	r.connections = nil
	r.mu.Unlock()

	r.record(ChangeClear, "success")
	r.notify(ChangeEvent{Action: ChangeClear, IDs: removed}, nil)
	return nil
}

// Export serialises the whole collection, passwords included, as an indented JSON array.
func (r *ConnectionRegistry) Export(ctx context.Context) ([]byte, error) {
	r.mu.RLock()
	snapshot := cloneConnections(r.connections)
	r.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("connection registry: export: %w", err)
	}
	return data, nil
}

// ExportFilename returns the download name for an export taken at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("sql-connections-%s.json", now.UTC().Format("2006-01-02"))
}

// ListByKind returns the connections of dbType sorted by order.
func (r *ConnectionRegistry) ListByKind(dbType models.DatabaseType) []models.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedByOrder(filterByType(r.connections, dbType))
}

// List returns every connection grouped by type in display order, each group sorted by order.
func (r *ConnectionRegistry) List() []models.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Connection, 0, len(r.connections))
	for _, t := range models.AllDatabaseTypes {
		out = append(out, sortedByOrder(filterByType(r.connections, t))...)
	}
	return out
}

// Get returns a single connection.
func (r *ConnectionRegistry) Get(id string) (*models.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := indexOf(r.connections, id)
	if idx < 0 {
		return nil, apperrors.ErrConnectionNotFound
	}
	conn := r.connections[idx]
	return &conn, nil
}

// Counts returns the number of connections per type, with every type present.
func (r *ConnectionRegistry) Counts() map[models.DatabaseType]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return countByType(r.connections)
}

// mutate runs fn on a private copy of the collection, persists the result and swaps it
// in. Listeners are notified after the lock is released.
func (r *ConnectionRegistry) mutate(ctx context.Context, action ChangeAction, fn func([]models.Connection) ([]models.Connection, ChangeEvent, error)) error {
	ctx = ensureContext(ctx)

	r.mu.Lock()
	next, event, err := fn(cloneConnections(r.connections))
	if err != nil {
		r.mu.Unlock()
		r.record(action, "rejected")
		return err
	}

	payload, err := json.Marshal(next)
	if err != nil {
		r.mu.Unlock()
		r.record(action, "persist_error")
		return apperrors.ErrPersistenceFailed.WithInternal(err)
	}
	if err := r.store.Set(ctx, r.key, payload, 0); err != nil {
		r.mu.Unlock()
		r.record(action, "persist_error")
		r.log.Error("failed to persist connections", zap.String("action", string(action)), zap.Error(err))
		return apperrors.ErrPersistenceFailed.WithInternal(err)
	}

	r.connections = next
	counts := countByType(next)
	r.mu.Unlock()

	event.Action = action
	r.record(action, "success")
	r.notify(event, counts)
	return nil
}

func (r *ConnectionRegistry) notify(event ChangeEvent, counts map[models.DatabaseType]int) {
	if counts == nil {
		counts = r.Counts()
	}
	event.Counts = counts
	for _, n := range counts {
		event.Total += n
	}
	updateConnectionGauge(counts)

	for _, listener := range r.listeners {
		listener(event)
	}
}

func (r *ConnectionRegistry) record(action ChangeAction, result string) {
	metrics.RegistryMutations.WithLabelValues(string(action), result).Inc()
}

// repair normalises records and makes their IDs unique against existing and each other.
func (r *ConnectionRegistry) repair(records []LooseConnection, existing []models.Connection) []models.Connection {
	now := r.now()

	taken := make(map[string]struct{}, len(existing)+len(records))
	for _, conn := range existing {
		taken[conn.ID] = struct{}{}
	}

	out := make([]models.Connection, 0, len(records))
	for i, loose := range records {
		conn := loose.Normalize(i, now)
		if _, dup := taken[conn.ID]; conn.ID == "" || dup {
			conn.ID = r.newID()
		}
		taken[conn.ID] = struct{}{}
		out = append(out, conn)
	}
	return out
}

func validateUpdate(input UpdateConnectionInput) error {
	if err := requireIdentity(input.ConnectionName, input.Host, input.Username); err != nil {
		return err
	}
	if input.Type != nil && !input.Type.Valid() {
		return apperrors.ErrInvalidConnection.WithMessage(fmt.Sprintf("unsupported database type %q", *input.Type))
	}
	if input.Environment != nil && !input.Environment.Valid() {
		return apperrors.ErrInvalidConnection.WithMessage(fmt.Sprintf("unsupported environment %q", *input.Environment))
	}
	if input.Port != nil && (*input.Port <= 0 || *input.Port > 65535) {
		return apperrors.ErrInvalidConnection.WithMessage("port must be between 1 and 65535")
	}
	return nil
}

// requireIdentity rejects a blank connection name, host or username. Nil pointers are
// fields an update leaves untouched.
func requireIdentity(name, host, username *string) error {
	for _, field := range []struct {
		label string
		value *string
	}{
		{"connection name", name},
		{"host", host},
		{"username", username},
	} {
		if field.value != nil && strings.TrimSpace(*field.value) == "" {
			return apperrors.ErrInvalidConnection.WithMessage(field.label + " is required")
		}
	}
	return nil
}

// permutationPositions maps each id to its new position, enforcing that ids is exactly
// the set of connection IDs of dbType.
func permutationPositions(current []models.Connection, dbType models.DatabaseType, ids []string) (map[string]int, error) {
	members := make(map[string]struct{})
	for _, conn := range current {
		if conn.Type == dbType {
			members[conn.ID] = struct{}{}
		}
	}

	if len(ids) != len(members) {
		return nil, apperrors.ErrInvalidReorder.WithMessage(
			fmt.Sprintf("expected %d %s connections, got %d", len(members), dbType, len(ids)))
	}

	positions := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := members[id]; !ok {
			return nil, apperrors.ErrInvalidReorder.WithMessage(fmt.Sprintf("connection %q is not a %s connection", id, dbType))
		}
		if _, dup := positions[id]; dup {
			return nil, apperrors.ErrInvalidReorder.WithMessage(fmt.Sprintf("connection %q listed more than once", id))
		}
		positions[id] = i
	}
	return positions, nil
}

func filterByType(connections []models.Connection, dbType models.DatabaseType) []models.Connection {
	out := make([]models.Connection, 0)
	for _, conn := range connections {
		if conn.Type == dbType {
			out = append(out, conn)
		}
	}
	return out
}

func sortedByOrder(connections []models.Connection) []models.Connection {
	sort.SliceStable(connections, func(i, j int) bool {
		return connections[i].Order < connections[j].Order
	})
	return connections
}

func countByType(connections []models.Connection) map[models.DatabaseType]int {
	counts := make(map[models.DatabaseType]int, len(models.AllDatabaseTypes))
	for _, t := range models.AllDatabaseTypes {
		counts[t] = 0
	}
	for _, conn := range connections {
		counts[conn.Type]++
	}
	return counts
}

func updateConnectionGauge(counts map[models.DatabaseType]int) {
	for t, n := range counts {
		metrics.Connections.WithLabelValues(string(t)).Set(float64(n))
	}
}

func indexOf(connections []models.Connection, id string) int {
	for i, conn := range connections {
		if conn.ID == id {
			return i
		}
	}
	return -1
}

func cloneConnections(connections []models.Connection) []models.Connection {
	out := make([]models.Connection, len(connections))
	copy(out, connections)
	return out
}

func timeOr(value *time.Time, fallback time.Time) time.Time {
	if value == nil || value.IsZero() {
		return fallback
	}
	return *value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
