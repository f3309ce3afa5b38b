package connector

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"go.uber.org/zap"
)

// Controller implements the operations of one entity kind. Kinds that do not offer an operation
// return ErrUnsupportedOperation from it.
type Controller[E any] interface {
	Kind() Kind
	Pull(ctx context.Context, limit int) ([]E, error)
	Push(ctx context.Context, batch *Batch, entity E) (E, error)
	Delete(ctx context.Context, batch *Batch, entity E) (E, error)
	Stats(ctx context.Context) (int64, error)
}

// Options are the storefront sync settings shared by every controller.
type Options struct {
	IncludeCompletedOrders bool
	ManageStock            bool
	PriceDecimals          int32
}

// base carries the dependencies and helpers shared by the controllers.
type base struct {
	kind    Kind
	tx      *Transactor
	options Options
	logger  *zap.Logger
}

func (b base) Kind() Kind {
	return b.kind
}

func (b base) stores() Stores {
	return b.tx.Stores()
}

func (b base) logError(operation, reason string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	logger := b.logger
	if logger == nil {
		logger = noOpLogger
	}
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	logger.Error("connector operation failed", allFields...)
}

// softFail records a missing reference and logs it. The caller returns its entity unchanged.
func (b base) softFail(batch *Batch, entity Identity, reference Kind, missing Identity) {
	failure := SoftResolutionFailure{Kind: b.kind, Entity: entity, Reference: reference, Missing: missing}
	batch.RecordFailure(failure)
	b.logger.Warn("unresolved reference",
		zap.String("kind", string(b.kind)),
		zap.Stringer("entity", entity),
		zap.String("reference", string(reference)),
		zap.Stringer("missing", missing),
		zap.String("batch_id", batch.ID()))
}

// hostOf returns the host id linked to a numeric endpoint id, or 0.
func hostOf(ctx context.Context, links *linking.Store, scope linking.Scope, endpointID int64) (int64, error) {
	if endpointID <= 0 {
		return 0, nil
	}
	host, _, err := links.LookupHost(ctx, scope, formatID(endpointID))
	return host, err
}

// referenceIdentity builds the identity of a referenced numeric record with its host half filled
// when it is already linked.
func referenceIdentity(ctx context.Context, links *linking.Store, scope linking.Scope, endpointID int64) (Identity, error) {
	identity := endpointIdentity(endpointID)
	if identity.Endpoint == "" {
		return identity, nil
	}
	host, err := hostOf(ctx, links, scope, endpointID)
	if err != nil {
		return Identity{}, err
	}
	identity.Host = host
	return identity, nil
}

// resolveReference finds the endpoint id of a referenced numeric record: the endpoint half if
// present, then the link of the host half, then the parent remembered by the batch under
// cacheKind. exists confirms a candidate endpoint id still names a record.
func resolveReference(
	ctx context.Context,
	links *linking.Store,
	batch *Batch,
	scope linking.Scope,
	cacheKind Kind,
	reference Identity,
	exists func(context.Context, int64) (bool, error),
) (int64, bool, error) {
	if endpointID, ok := numericEndpoint(reference); ok {
		found, err := exists(ctx, endpointID)
		if err != nil || found {
			return endpointID, found, err
		}
	}
	if reference.Host <= 0 {
		return 0, false, nil
	}
	linked, found, err := links.LookupEndpoint(ctx, scope, reference.Host)
	if err != nil {
		return 0, false, err
	}
	if found {
		endpointID, ok := numericEndpoint(Identity{Endpoint: linked})
		if ok {
			present, err := exists(ctx, endpointID)
			if err != nil || present {
				return endpointID, present, err
			}
		}
	}
	if cacheKind != "" {
		if endpointID, ok := batch.Parent(cacheKind, reference.Host); ok {
			present, err := exists(ctx, endpointID)
			if err != nil || present {
				return endpointID, present, err
			}
		}
	}
	return 0, false, nil
}

func requireHost(operation string, identity Identity) error {
	if identity.Host <= 0 {
		return newServiceError(operation, "missing_host_id", fmt.Errorf("%w: %s", ErrMissingHostID, identity))
	}
	return nil
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return noOpLogger
	}
	return logger
}
