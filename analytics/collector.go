package analytics

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/cache"
	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
)

// Storage keys.
const (
	AnalyticsKey     = "query:analytics"
	RegistryKey      = "query:metric:keys"
	MetricsKeyPrefix = "query:metrics:"
)

const recentResultSizes = 10

// QueryMetrics is one recorded execution.
type QueryMetrics struct {
	QueryID         string         `json:"queryId"`
	QueryPattern    string         `json:"queryPattern"`
	Filters         map[string]any `json:"filters"`
	ExecutionTimeMs float64        `json:"executionTime"`
	TimestampMs     int64          `json:"timestamp"`
	ResultCount     int            `json:"resultCount"`
}

// QueryAnalytics aggregates the retained metrics of one query id.
type QueryAnalytics struct {
	QueryID                string         `json:"queryId"`
	QueryPattern           string         `json:"queryPattern"`
	AverageExecutionTimeMs float64        `json:"averageExecutionTime"`
	MinExecutionTimeMs     float64        `json:"minExecutionTime"`
	MaxExecutionTimeMs     float64        `json:"maxExecutionTime"`
	TotalExecutions        int            `json:"totalExecutions"`
	LastExecutionTimeMs    float64        `json:"lastExecutionTime"`
	LastExecutedAt         int64          `json:"lastExecuted"`
	// Frequency counts executions during the trailing hour.
	Frequency         int            `json:"frequency"`
	IsSlowQuery       bool           `json:"isSlowQuery"`
	CommonFilters     map[string]int `json:"commonFilters"`
	RecentResultSizes []int          `json:"resultSizes"`
}

// Option configures a Collector.
type Option func(*Collector)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// Stats counts what the collector did since construction.
type Stats struct {
	Recorded int64
	Dropped  int64
	Slow     int64
}

// Collector records query executions into a Cache and aggregates them.
type Collector struct {
	cfg     Config
	lists   *cache.Typed[[]QueryMetrics]
	keys    *cache.Typed[[]string]
	agg     *cache.Typed[map[string]QueryAnalytics]
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	// registry holds metric keys oldest first.
	regMu    sync.Mutex
	registry []string

	// listMu serializes read-modify-write of metric lists.
	listMu sync.Mutex

	queue  chan QueryMetrics
	events chan Event

	recorded *xsync.Counter
	dropped  *xsync.Counter
	slow     *xsync.Counter

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
	closed      bool
}

// New creates a collector over store. Start launches the background work.
func New(store cache.Cache, cfg Config, opts ...Option) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Collector{
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		queue:    make(chan QueryMetrics, cfg.QueueSize),
		events:   make(chan Event, eventBuffer),
		recorded: xsync.NewCounter(),
		dropped:  xsync.NewCounter(),
		slow:     xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.lists = cache.NewTyped[[]QueryMetrics](store, c.logger)
	c.keys = cache.NewTyped[[]string](store, c.logger)
	c.agg = cache.NewTyped[map[string]QueryAnalytics](store, c.logger)
	return c, nil
}

// Events streams QueryExecuted and SlowQuery notifications.
func (c *Collector) Events() <-chan Event { return c.events }

// Stats returns the running counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Recorded: c.recorded.Value(),
		Dropped:  c.dropped.Value(),
		Slow:     c.slow.Value(),
	}
}

// GenerateQueryID hashes pattern and the canonical form of filters. Filter
// key order does not change the id.
func GenerateQueryID(pattern string, filters any) string {
	h := xxhash.Sum64String(pattern + ":" + cache.CanonicalJSON(filters))
	return "q" + strconv.FormatUint(h, 36)
}

// MetricsKey returns the storage key of a query id's metric list.
func MetricsKey(queryID string) string {
	return MetricsKeyPrefix + queryID
}

// Start restores the registry and launches the metrics worker and the
// aggregation ticker. It is a no-op once started or closed.
func (c *Collector) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started || c.closed {
		return nil
	}

	if err := c.loadRegistry(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.started = true

	c.wg.Add(2)
	go c.worker(ctx)
	go c.scheduler(ctx)
	return nil
}

// Close stops the background work and waits for it. Pending queued
// records are discarded.
func (c *Collector) Close() error {
	c.lifecycleMu.Lock()
	if c.closed {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// RecordQuery registers the query id and queues the execution for the
// metrics worker. It never blocks; when the queue is full the record is
// dropped.
func (c *Collector) RecordQuery(pattern string, filters any, executionTime time.Duration, resultCount int) string {
	id := GenerateQueryID(pattern, filters)

	m := QueryMetrics{
		QueryID:         id,
		QueryPattern:    pattern,
		Filters:         filterMap(filters),
		ExecutionTimeMs: float64(executionTime) / float64(time.Millisecond),
		TimestampMs:     c.now().UnixMilli(),
		ResultCount:     resultCount,
	}

	c.register(MetricsKey(id))

	select {
	case c.queue <- m:
	default:
		c.dropped.Inc()
		c.logger.Warn("analytics queue full, dropping query metrics",
			zap.String("query_id", id),
			zap.String("pattern", pattern),
		)
	}
	return id
}

// RecordQueryMetrics appends m to its query's list and prunes entries past
// the retention window.
func (c *Collector) RecordQueryMetrics(ctx context.Context, m QueryMetrics) error {
	key := MetricsKey(m.QueryID)

	c.listMu.Lock()
	list, _, err := c.lists.Get(ctx, key)
	if err != nil {
		c.listMu.Unlock()
		return err
	}
	list = c.prune(append(list, m))
	err = c.lists.Set(ctx, key, list, c.cfg.TTL)
	c.listMu.Unlock()
	if err != nil {
		return err
	}

	c.recorded.Inc()
	slow := m.ExecutionTimeMs > c.thresholdMs()
	c.metrics.ObserveQuery(m.QueryPattern, m.ExecutionTimeMs/1000, slow)

	if slow {
		c.slow.Inc()
		c.logger.Warn("slow query detected",
			zap.String("pattern", m.QueryPattern),
			zap.String("query_id", m.QueryID),
			zap.Float64("execution_ms", m.ExecutionTimeMs),
		)
		c.emit(Event{Kind: EventSlowQuery, Metrics: m})
	}
	c.emit(Event{Kind: EventQueryExecuted, Metrics: m})
	return nil
}

// ProcessQueryAnalytics aggregates every tracked query and stores the
// result under AnalyticsKey.
func (c *Collector) ProcessQueryAnalytics(ctx context.Context) error {
	keys := c.trackedKeys()
	analytics := make(map[string]QueryAnalytics, len(keys))

	for _, key := range keys {
		list, _, err := c.lists.Get(ctx, key)
		if err != nil {
			return err
		}
		list = c.prune(list)
		if len(list) == 0 {
			continue
		}
		a := c.aggregate(list)
		analytics[a.QueryID] = a
	}

	if err := c.agg.Set(ctx, AnalyticsKey, analytics, c.cfg.TTL); err != nil {
		return err
	}

	c.logger.Info("processed query analytics", zap.Int("queries", len(analytics)))
	return nil
}

func (c *Collector) aggregate(list []QueryMetrics) QueryAnalytics {
	sort.SliceStable(list, func(i, j int) bool { return list[i].TimestampMs > list[j].TimestampMs })

	hourAgo := c.now().Add(-time.Hour).UnixMilli()
	a := QueryAnalytics{
		QueryID:             list[0].QueryID,
		QueryPattern:        list[0].QueryPattern,
		MinExecutionTimeMs:  math.Inf(1),
		MaxExecutionTimeMs:  math.Inf(-1),
		TotalExecutions:     len(list),
		LastExecutionTimeMs: list[0].ExecutionTimeMs,
		LastExecutedAt:      list[0].TimestampMs,
		CommonFilters:       map[string]int{},
	}

	var sum float64
	for i, m := range list {
		sum += m.ExecutionTimeMs
		a.MinExecutionTimeMs = math.Min(a.MinExecutionTimeMs, m.ExecutionTimeMs)
		a.MaxExecutionTimeMs = math.Max(a.MaxExecutionTimeMs, m.ExecutionTimeMs)
		if m.TimestampMs >= hourAgo {
			a.Frequency++
		}
		for name := range m.Filters {
			a.CommonFilters[name]++
		}
		if i < recentResultSizes {
			a.RecentResultSizes = append(a.RecentResultSizes, m.ResultCount)
		}
	}

	a.AverageExecutionTimeMs = sum / float64(len(list))
	a.IsSlowQuery = a.AverageExecutionTimeMs > c.thresholdMs()
	return a
}

// GetQueryAnalytics returns every aggregate, ordered by query id.
func (c *Collector) GetQueryAnalytics(ctx context.Context) ([]QueryAnalytics, error) {
	all, _, err := c.agg.Get(ctx, AnalyticsKey)
	if err != nil {
		return nil, err
	}

	out := make([]QueryAnalytics, 0, len(all))
	for _, a := range all {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueryID < out[j].QueryID })
	return out, nil
}

// GetQueryAnalyticsByID returns the aggregate of one query id.
func (c *Collector) GetQueryAnalyticsByID(ctx context.Context, queryID string) (QueryAnalytics, bool, error) {
	all, _, err := c.agg.Get(ctx, AnalyticsKey)
	if err != nil {
		return QueryAnalytics{}, false, err
	}
	a, ok := all[queryID]
	return a, ok, nil
}

// GetSlowQueries returns the slow aggregates, slowest average first.
func (c *Collector) GetSlowQueries(ctx context.Context) ([]QueryAnalytics, error) {
	all, err := c.GetQueryAnalytics(ctx)
	if err != nil {
		return nil, err
	}

	slow := all[:0]
	for _, a := range all {
		if a.IsSlowQuery {
			slow = append(slow, a)
		}
	}
	sort.SliceStable(slow, func(i, j int) bool {
		return slow[i].AverageExecutionTimeMs > slow[j].AverageExecutionTimeMs
	})
	return slow, nil
}

// GetMostFrequentQueries returns up to limit aggregates, most frequent
// first. A limit of zero or less means 10.
func (c *Collector) GetMostFrequentQueries(ctx context.Context, limit int) ([]QueryAnalytics, error) {
	if limit <= 0 {
		limit = 10
	}

	all, err := c.GetQueryAnalytics(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Frequency > all[j].Frequency })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// TrackedQueries returns the registered query ids, oldest first.
func (c *Collector) TrackedQueries() []string {
	keys := c.trackedKeys()
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, MetricsKeyPrefix)
	}
	return ids
}

func (c *Collector) register(key string) {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	if contains(c.registry, key) {
		return
	}
	if len(c.registry) >= c.cfg.MaxStoredQueries {
		evicted := c.registry[0]
		c.registry = append(c.registry[:0:0], c.registry[1:]...)
		c.logger.Debug("evicted tracked query", zap.String("key", evicted))
	}
	c.registry = append(c.registry, key)
}

func (c *Collector) trackedKeys() []string {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return append([]string(nil), c.registry...)
}

func (c *Collector) loadRegistry(ctx context.Context) error {
	stored, ok, err := c.keys.Get(ctx, RegistryKey)
	if err != nil || !ok {
		return err
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()
	merged := append([]string(nil), stored...)
	for _, k := range c.registry {
		if !contains(merged, k) {
			merged = append(merged, k)
		}
	}
	if over := len(merged) - c.cfg.MaxStoredQueries; over > 0 {
		merged = merged[over:]
	}
	c.registry = merged
	return nil
}

func (c *Collector) persistRegistry(ctx context.Context) error {
	return c.keys.Set(ctx, RegistryKey, c.trackedKeys(), c.cfg.TTL)
}

func (c *Collector) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.queue:
			if err := c.persistRegistry(ctx); err != nil {
				c.logger.Error("failed to persist query registry", zap.Error(err))
			}
			if err := c.RecordQueryMetrics(ctx, m); err != nil {
				c.logger.Error("failed to record query metrics",
					zap.String("query_id", m.QueryID),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *Collector) scheduler(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ProcessQueryAnalytics(ctx); err != nil {
				c.logger.Error("failed to process query analytics", zap.Error(err))
			}
		}
	}
}

func (c *Collector) prune(list []QueryMetrics) []QueryMetrics {
	cutoff := c.now().Add(-c.cfg.Retention).UnixMilli()
	kept := list[:0]
	for _, m := range list {
		if m.TimestampMs >= cutoff {
			kept = append(kept, m)
		}
	}
	return kept
}

func (c *Collector) thresholdMs() float64 {
	return float64(c.cfg.SlowQueryThreshold) / float64(time.Millisecond)
}

func filterMap(filters any) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(cache.CanonicalJSON(filters)), &out)
	return out
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
