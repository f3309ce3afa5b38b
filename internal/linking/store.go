// Package linking persists the bidirectional mapping between host and endpoint identifiers.
package linking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/erplink/internal/storeerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxEndpointLength = 190

var (
	// ErrInvalidHostID indicates a host id that is not positive.
	ErrInvalidHostID = errors.New("linking: invalid host id")
	// ErrInvalidEndpointID indicates an empty endpoint id or a non-decimal id for a numeric table.
	ErrInvalidEndpointID = errors.New("linking: invalid endpoint id")
	// ErrConflict is matched by every ConflictError.
	ErrConflict = errors.New("linking: conflicting link")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew       = "linking.store.new"
	opLookupEndpoint = "linking.lookup_endpoint"
	opLookupHost     = "linking.lookup_host"
	opLink           = "linking.link"
	opUnlinkHost     = "linking.unlink_host"
	opUnlinkEndpoint = "linking.unlink_endpoint"
	opCount          = "linking.count"
)

// ConflictError reports an attempt to link a host or endpoint id that is already linked to a
// different counterpart. Existing links are never overwritten.
type ConflictError struct {
	Scope              Scope
	HostID             int64
	EndpointID         string
	ExistingHostID     int64
	ExistingEndpointID string
}

func (e *ConflictError) Error() string {
	if e.ExistingEndpointID != "" {
		return fmt.Sprintf("linking: %s host %d already linked to endpoint %q, refusing %q",
			e.Scope, e.HostID, e.ExistingEndpointID, e.EndpointID)
	}
	return fmt.Sprintf("linking: %s endpoint %q already linked to host %d, refusing %d",
		e.Scope, e.EndpointID, e.ExistingHostID, e.HostID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store implements lookups and link mutations over the per-type link tables.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opStoreNew, errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// WithTx returns a Store bound to tx so link mutations commit with the surrounding business write.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, logger: s.logger}
}

// LookupEndpoint returns the endpoint id linked to hostID.
func (s *Store) LookupEndpoint(ctx context.Context, scope Scope, hostID int64) (string, bool, error) {
	layout, err := scope.resolve()
	if err != nil {
		return "", false, err
	}
	if hostID <= 0 {
		return "", false, fmt.Errorf("%w: %d", ErrInvalidHostID, hostID)
	}
	endpointID, found, err := s.lookupEndpoint(ctx, scope, layout, hostID)
	if err != nil {
		s.logError(opLookupEndpoint, "query_failed", err, zap.Stringer("scope", scope), zap.Int64("host_id", hostID))
		return "", false, storeerr.New(opLookupEndpoint, "query_failed", err)
	}
	return endpointID, found, nil
}

// LookupHost returns the host id linked to endpointID.
func (s *Store) LookupHost(ctx context.Context, scope Scope, endpointID string) (int64, bool, error) {
	layout, err := scope.resolve()
	if err != nil {
		return 0, false, err
	}
	value, err := layout.endpointValue(endpointID)
	if err != nil {
		return 0, false, err
	}
	hostID, found, err := s.lookupHost(ctx, scope, layout, value)
	if err != nil {
		s.logError(opLookupHost, "query_failed", err, zap.Stringer("scope", scope), zap.String("endpoint_id", endpointID))
		return 0, false, storeerr.New(opLookupHost, "query_failed", err)
	}
	return hostID, found, nil
}

// Link associates hostID with endpointID. Linking an existing pair is a no-op; linking either side
// to a different counterpart fails with a *ConflictError.
func (s *Store) Link(ctx context.Context, scope Scope, hostID int64, endpointID string) error {
	layout, err := scope.resolve()
	if err != nil {
		return err
	}
	if hostID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHostID, hostID)
	}
	value, err := layout.endpointValue(endpointID)
	if err != nil {
		return err
	}
	normalized := formatEndpoint(value)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound := s.WithTx(tx)

		existingEndpoint, found, err := bound.lookupEndpoint(ctx, scope, layout, hostID)
		if err != nil {
			s.logError(opLink, "endpoint_lookup_failed", err, zap.Stringer("scope", scope), zap.Int64("host_id", hostID))
			return storeerr.New(opLink, "endpoint_lookup_failed", err)
		}
		if found {
			if existingEndpoint == normalized {
				return nil
			}
			return &ConflictError{Scope: scope, HostID: hostID, EndpointID: normalized, ExistingEndpointID: existingEndpoint}
		}

		existingHost, found, err := bound.lookupHost(ctx, scope, layout, value)
		if err != nil {
			s.logError(opLink, "host_lookup_failed", err, zap.Stringer("scope", scope), zap.String("endpoint_id", normalized))
			return storeerr.New(opLink, "host_lookup_failed", err)
		}
		if found && existingHost != hostID {
			return &ConflictError{Scope: scope, HostID: hostID, EndpointID: normalized, ExistingHostID: existingHost}
		}

		row := map[string]any{
			"endpoint_id": value,
			"host_id":     hostID,
		}
		scope.columns(layout, row)
		if err := tx.Table(layout.table).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
			s.logError(opLink, "insert_failed", err, zap.Stringer("scope", scope), zap.Int64("host_id", hostID), zap.String("endpoint_id", normalized))
			return storeerr.New(opLink, "insert_failed", err)
		}
		return nil
	})
}

// UnlinkHost removes the links of hostID and returns the number of removed rows.
func (s *Store) UnlinkHost(ctx context.Context, scope Scope, hostID int64) (int64, error) {
	layout, err := scope.resolve()
	if err != nil {
		return 0, err
	}
	if hostID <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidHostID, hostID)
	}
	removed, err := s.deleteWhere(ctx, scope, layout, "host_id", hostID)
	if err != nil {
		s.logError(opUnlinkHost, "delete_failed", err, zap.Stringer("scope", scope), zap.Int64("host_id", hostID))
		return 0, storeerr.New(opUnlinkHost, "delete_failed", err)
	}
	return removed, nil
}

// UnlinkEndpoint removes the links of endpointID and returns the number of removed rows.
func (s *Store) UnlinkEndpoint(ctx context.Context, scope Scope, endpointID string) (int64, error) {
	layout, err := scope.resolve()
	if err != nil {
		return 0, err
	}
	value, err := layout.endpointValue(endpointID)
	if err != nil {
		return 0, err
	}
	removed, err := s.deleteWhere(ctx, scope, layout, "endpoint_id", value)
	if err != nil {
		s.logError(opUnlinkEndpoint, "delete_failed", err, zap.Stringer("scope", scope), zap.String("endpoint_id", endpointID))
		return 0, storeerr.New(opUnlinkEndpoint, "delete_failed", err)
	}
	return removed, nil
}

// Count returns the number of links in scope.
func (s *Store) Count(ctx context.Context, scope Scope) (int64, error) {
	layout, err := scope.resolve()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := scope.filter(s.db.WithContext(ctx).Table(layout.table), layout).Count(&total).Error; err != nil {
		s.logError(opCount, "query_failed", err, zap.Stringer("scope", scope))
		return 0, storeerr.New(opCount, "query_failed", err)
	}
	return total, nil
}

func (s *Store) lookupEndpoint(ctx context.Context, scope Scope, layout tableLayout, hostID int64) (string, bool, error) {
	query := scope.filter(s.db.WithContext(ctx).Table(layout.table).Where("host_id = ?", hostID), layout).
		Order("endpoint_id").
		Limit(1)
	if layout.numeric {
		var endpoints []int64
		if err := query.Pluck("endpoint_id", &endpoints).Error; err != nil {
			return "", false, err
		}
		if len(endpoints) == 0 {
			return "", false, nil
		}
		return strconv.FormatInt(endpoints[0], 10), true, nil
	}
	var endpoints []string
	if err := query.Pluck("endpoint_id", &endpoints).Error; err != nil {
		return "", false, err
	}
	if len(endpoints) == 0 {
		return "", false, nil
	}
	return endpoints[0], true, nil
}

func (s *Store) lookupHost(ctx context.Context, scope Scope, layout tableLayout, endpoint any) (int64, bool, error) {
	var hosts []int64
	err := scope.filter(s.db.WithContext(ctx).Table(layout.table).Where("endpoint_id = ?", endpoint), layout).
		Order("host_id").
		Limit(1).
		Pluck("host_id", &hosts).Error
	if err != nil {
		return 0, false, err
	}
	if len(hosts) == 0 {
		return 0, false, nil
	}
	return hosts[0], true, nil
}

func (s *Store) deleteWhere(ctx context.Context, scope Scope, layout tableLayout, column string, value any) (int64, error) {
	statement := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", layout.table, column)
	args := []any{value}
	switch layout.discriminator {
	case discriminatorGuest:
		statement += " AND " + guestColumn + " = ?"
		args = append(args, *scope.guest)
	case discriminatorRelation:
		statement += " AND " + relationColumn + " = ?"
		args = append(args, string(scope.relation))
	}
	result := s.db.WithContext(ctx).Exec(statement, args...)
	return result.RowsAffected, result.Error
}

func (layout tableLayout) endpointValue(endpointID string) (any, error) {
	trimmed := strings.TrimSpace(endpointID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidEndpointID)
	}
	if !layout.numeric {
		if len(trimmed) > maxEndpointLength {
			return nil, fmt.Errorf("%w: exceeds %d characters", ErrInvalidEndpointID, maxEndpointLength)
		}
		return trimmed, nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return nil, fmt.Errorf("%w: %q is not a positive integer", ErrInvalidEndpointID, trimmed)
	}
	return value, nil
}

func formatEndpoint(value any) string {
	switch typed := value.(type) {
	case int64:
		return strconv.FormatInt(typed, 10)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("linking store error", attrs...)
}
