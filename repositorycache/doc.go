// Package repositorycache keeps the product caches consistent with the
// product store.
//
// # Overview
//
// CachedRepository decorates a go-repository-bun Repository[T]. Every read
// goes straight to the base repository; the read path caches live in the
// optimizer and productcache packages. Every successful write is reported
// to an Invalidator, which drops the cache entries the write made stale:
//
//	Create, CreateMany, GetOrCreate (and Tx variants)  -> Created(records)
//	Update, UpdateMany, Upsert, UpsertMany (and Tx)    -> Updated(records)
//	Delete, ForceDelete (and Tx)                       -> Deleted(records)
//	DeleteMany, DeleteWhere (and Tx)                   -> Purged()
//
// Failed writes invalidate nothing. Invalidation errors are logged and
// never returned from the write.
//
// # Basic Usage
//
//	base := repository.NewRepository[*catalog.Product](db, handlers)
//	products := productcache.New(resilient)
//
//	repo := repositorycache.New[*catalog.Product](base, products,
//		repositorycache.WithLogger(logger),
//	)
//
// # Background Invalidation
//
// A Worker is an Invalidator that queues mutations on a typed channel and
// applies them to its target from one goroutine, in order:
//
//	w := repositorycache.NewWorker[*catalog.Product](products, 128, logger)
//	w.Start(ctx)
//	defer w.Close()
//
//	repo := repositorycache.New[*catalog.Product](base, w)
//
// Close applies whatever is still queued before returning.
//
// # Bulk Loads
//
// Writes made with a context from WithoutInvalidation are not reported.
// A loader that writes thousands of rows uses it and calls the
// invalidator once at the end.
//
// # Transactions
//
// Tx variants invalidate as soon as the statement succeeds, before the
// caller commits. A rolled back transaction therefore costs a cache miss,
// never a stale read.
package repositorycache
