package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Operation names one controller operation.
type Operation string

const (
	OperationPull      Operation = "pull"
	OperationPush      Operation = "push"
	OperationDelete    Operation = "delete"
	OperationStatistic Operation = "statistic"
)

const opRegistryNew = "connector.registry.new"

// ErrInvalidPayload indicates an entity payload that does not decode into the kind's entity.
var ErrInvalidPayload = errors.New("connector: invalid payload")

// Handler exposes one controller to the transport layer with entities encoded as JSON.
type Handler interface {
	Kind() Kind
	Supports(operation Operation) bool
	Pull(ctx context.Context, limit int) (any, error)
	Push(ctx context.Context, batch *Batch, payload json.RawMessage) (any, error)
	Delete(ctx context.Context, batch *Batch, payload json.RawMessage) (any, error)
	Stats(ctx context.Context) (int64, error)
}

type binding[E any] struct {
	controller Controller[E]
	operations map[Operation]bool
}

func bind[E any](controller Controller[E], operations ...Operation) Handler {
	supported := make(map[Operation]bool, len(operations))
	for _, operation := range operations {
		supported[operation] = true
	}
	return &binding[E]{controller: controller, operations: supported}
}

func (b *binding[E]) Kind() Kind {
	return b.controller.Kind()
}

func (b *binding[E]) Supports(operation Operation) bool {
	return b.operations[operation]
}

func (b *binding[E]) Pull(ctx context.Context, limit int) (any, error) {
	if !b.Supports(OperationPull) {
		return nil, unsupported(b.Kind(), string(OperationPull))
	}
	return b.controller.Pull(ctx, limit)
}

func (b *binding[E]) Push(ctx context.Context, batch *Batch, payload json.RawMessage) (any, error) {
	if !b.Supports(OperationPush) {
		return nil, unsupported(b.Kind(), string(OperationPush))
	}
	entity, err := b.decode(payload)
	if err != nil {
		return nil, err
	}
	return b.controller.Push(ctx, batch, entity)
}

func (b *binding[E]) Delete(ctx context.Context, batch *Batch, payload json.RawMessage) (any, error) {
	if !b.Supports(OperationDelete) {
		return nil, unsupported(b.Kind(), string(OperationDelete))
	}
	entity, err := b.decode(payload)
	if err != nil {
		return nil, err
	}
	return b.controller.Delete(ctx, batch, entity)
}

func (b *binding[E]) Stats(ctx context.Context) (int64, error) {
	if !b.Supports(OperationStatistic) {
		return 0, unsupported(b.Kind(), string(OperationStatistic))
	}
	return b.controller.Stats(ctx)
}

func (b *binding[E]) decode(payload json.RawMessage) (E, error) {
	var entity E
	if err := json.Unmarshal(payload, &entity); err != nil {
		operation := fmt.Sprintf("connector.%s.decode", b.Kind())
		return entity, newServiceError(operation, "invalid_payload", fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	return entity, nil
}

// RegistryConfig describes the dependencies of a Registry.
type RegistryConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Options  Options
	Logger   *zap.Logger
}

// Registry owns one controller per kind.
type Registry struct {
	handlers     map[Kind]Handler
	acknowledger *Acknowledger
	logger       *zap.Logger
}

// NewRegistry builds every controller over one Transactor.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opRegistryNew, "missing_database", errMissingDatabase)
	}
	logger := loggerOrNop(cfg.Logger)
	tx, err := NewTransactor(TransactorConfig{Database: cfg.Database, Clock: cfg.Clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	options := cfg.Options
	all := []Operation{OperationPull, OperationPush, OperationDelete, OperationStatistic}
	handlers := []Handler{
		bind[Product](NewProductController(tx, options, logger), all...),
		bind[Category](NewCategoryController(tx, options, logger), all...),
		bind[Customer](NewCustomerController(tx, options, logger), all...),
		bind[CustomerOrder](NewCustomerOrderController(tx, options, logger), OperationPull, OperationStatistic),
		bind[Payment](NewPaymentController(tx, options, logger), OperationPull, OperationPush, OperationStatistic),
		bind[Image](NewImageController(tx, options, logger), all...),
		bind[TaxRate](NewTaxRateController(tx, options, logger), OperationPull, OperationStatistic),
		bind[ShippingClass](NewShippingClassController(tx, options, logger), OperationPull, OperationPush, OperationStatistic),
		bind[ProductPrice](NewProductPriceController(tx, options, logger), OperationPush),
		bind[ProductStockLevel](NewProductStockLevelController(tx, options, logger), OperationPush),
	}
	registry := &Registry{
		handlers:     make(map[Kind]Handler, len(handlers)),
		acknowledger: NewAcknowledger(tx, logger),
		logger:       logger,
	}
	for _, handler := range handlers {
		registry.handlers[handler.Kind()] = handler
	}
	return registry, nil
}

// Handler returns the handler of kind.
func (r *Registry) Handler(kind Kind) (Handler, error) {
	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return handler, nil
}

// Acknowledger returns the acknowledger sharing the registry's stores.
func (r *Registry) Acknowledger() *Acknowledger {
	return r.acknowledger
}

// Features lists the supported operations of every kind.
func (r *Registry) Features() map[Kind][]Operation {
	features := make(map[Kind][]Operation, len(r.handlers))
	for _, kind := range Kinds() {
		handler := r.handlers[kind]
		operations := []Operation{}
		for _, operation := range []Operation{OperationPull, OperationPush, OperationDelete, OperationStatistic} {
			if handler.Supports(operation) {
				operations = append(operations, operation)
			}
		}
		features[kind] = operations
	}
	return features
}

// Statistic is the unlinked count of one kind.
type Statistic struct {
	Kind      Kind  `json:"kind"`
	Available int64 `json:"available"`
}

// Statistics returns the unlinked count of every kind that offers statistics.
func (r *Registry) Statistics(ctx context.Context) ([]Statistic, error) {
	statistics := make([]Statistic, 0, len(r.handlers))
	for _, kind := range Kinds() {
		handler := r.handlers[kind]
		if !handler.Supports(OperationStatistic) {
			continue
		}
		available, err := handler.Stats(ctx)
		if err != nil {
			return nil, err
		}
		statistics = append(statistics, Statistic{Kind: kind, Available: available})
	}
	return statistics, nil
}
