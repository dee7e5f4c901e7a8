package di

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
	"github.com/shopavnu/avnu-marketplace-sub008/optimizer"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/config"
)

// TestConcurrentReadWrite mixes cached reads with writes that invalidate
// the same keys. Run with -race.
func TestConcurrentReadWrite(t *testing.T) {
	c, _, _ := newTestContainer(t, func(cfg *config.Config) {
		cfg.Invalidation.Async = true
		cfg.Invalidation.Buffer = 64
	})
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	const numGoroutines = 16
	const operationsPerGoroutine = 25

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				id := fmt.Sprintf("p%d", j%4+1)
				switch (workerID + j) % 3 {
				case 0:
					if _, err := c.Optimizer().OptimizedQuery(ctx, activeInStock, optimizer.Pagination{Page: 1, Limit: 10}); err != nil {
						errs <- err
					}
				case 1:
					if err := c.ProductCache().CacheProduct(ctx, &catalog.Product{ID: id, MerchantID: "m1"}); err != nil {
						errs <- err
					}
					c.ProductCache().GetProduct(ctx, id)
				default:
					if _, err := c.Products().Update(ctx, &catalog.Product{ID: id, MerchantID: "m1"}); err != nil {
						errs <- err
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}

func BenchmarkOptimizedQuery(b *testing.B) {
	c, _, _ := newTestContainer(b, nil)
	ctx := context.Background()
	page := optimizer.Pagination{Page: 1, Limit: 20}

	if _, err := c.Optimizer().OptimizedQuery(ctx, activeInStock, page); err != nil {
		b.Fatalf("priming query failed: %v", err)
	}

	b.Run("cached", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = c.Optimizer().OptimizedQuery(ctx, activeInStock, page)
		}
	})

	b.Run("distinct_filters", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			f := optimizer.QueryFilters{MerchantID: fmt.Sprintf("m%d", i%1000)}
			_, _ = c.Optimizer().OptimizedQuery(ctx, f, page)
		}
	})
}

func BenchmarkProductCache(b *testing.B) {
	c, _, _ := newTestContainer(b, nil)
	ctx := context.Background()
	products := c.ProductCache()

	for i := 0; i < 1000; i++ {
		_ = products.CacheProduct(ctx, &catalog.Product{ID: fmt.Sprintf("bench-%d", i), Title: "Bench product"})
	}

	b.Run("GetProduct", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			products.GetProduct(ctx, fmt.Sprintf("bench-%d", i%1000))
		}
	})

	b.Run("GetProduct_parallel", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				products.GetProduct(ctx, fmt.Sprintf("bench-%d", i%1000))
				i++
			}
		})
	})
}
