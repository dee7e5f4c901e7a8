package repositorycache

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// Invalidator drops cached data after the repository changed. Records are
// the rows as returned by the write.
type Invalidator[T any] interface {
	Created(ctx context.Context, records []T) error
	Updated(ctx context.Context, records []T) error
	Deleted(ctx context.Context, records []T) error
	// Purged follows deletes by criteria, where the rows are unknown.
	Purged(ctx context.Context) error
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// CachedRepository decorates a base repository so that every successful
// write invalidates the caches built on top of it. Reads pass through.
type CachedRepository[T any] struct {
	base        repository.Repository[T]
	invalidator Invalidator[T]
	logger      *zap.Logger
	entity      string
}

// New wraps base. Writes invalidate through inv inline; pass a *Worker[T]
// to invalidate in the background instead.
func New[T any](base repository.Repository[T], inv Invalidator[T], opts ...Option) *CachedRepository[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &CachedRepository[T]{
		base:        base,
		invalidator: inv,
		logger:      o.logger,
		entity:      entityName[T](),
	}
}

// Get retrieves a single record using the provided criteria
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.Get(ctx, criteria...)
}

func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByID(ctx, id, criteria...)
}

// List retrieves a page of records and the total match count
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.List(ctx, criteria...)
}

func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifier(ctx, identifier, criteria...)
}

// Create creates a new record and reports it as created
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.notify(ctx, MutationCreated, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction. Invalidation runs
// before the caller commits.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.notify(ctx, MutationCreated, result)
	}
	return result, err
}

func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.notify(ctx, MutationCreated, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.notify(ctx, MutationCreated, result...)
	}
	return result, err
}

// GetOrCreate may insert, so it is reported as a create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.notify(ctx, MutationCreated, result)
	}
	return result, err
}

func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.notify(ctx, MutationCreated, result)
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result...)
	}
	return result, err
}

// Upsert can insert or update; it invalidates like an update.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.notify(ctx, MutationUpdated, result...)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.notify(ctx, MutationDeleted, record)
	}
	return err
}

func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.notify(ctx, MutationDeleted, record)
	}
	return err
}

// DeleteMany deletes by criteria; the affected rows are unknown.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.notify(ctx, MutationPurged)
	}
	return err
}

func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.notify(ctx, MutationPurged)
	}
	return err
}

func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.notify(ctx, MutationPurged)
	}
	return err
}

func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.notify(ctx, MutationPurged)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.notify(ctx, MutationDeleted, record)
	}
	return err
}

func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.notify(ctx, MutationDeleted, record)
	}
	return err
}

func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query. Raw writes are not seen by the invalidator.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// notify invalidates after a successful write. Failures are logged and
// never reach the caller of the write.
func (c *CachedRepository[T]) notify(ctx context.Context, kind MutationKind, records ...T) {
	if invalidationSkipped(ctx) {
		c.logger.Debug("invalidation skipped", zap.String("entity", c.entity), zap.Stringer("kind", kind))
		return
	}

	if c.invalidator == nil {
		return
	}
	if err := apply(ctx, c.invalidator, Mutation[T]{Kind: kind, Records: records}); err != nil {
		c.logger.Warn("cache invalidation failed",
			zap.String("entity", c.entity),
			zap.Stringer("kind", kind),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
	}
}
