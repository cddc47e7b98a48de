package runner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/dependency"
	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/progress"
	"github.com/giantswarm/llm-gauge/internal/record"
	"github.com/giantswarm/llm-gauge/internal/sut"
	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

// sampleSeed seeds the shuffle used to pick a subset of test items.
const sampleSeed = 0

// ProgressFunc is called after every finished test item.
type ProgressFunc func(done, total int)

// Runner runs tests against SUTs and produces records.
type Runner struct {
	dataDir          string
	maxTestItems     *int
	caching          bool
	progressBar      bool
	workers          int
	callTimeout      time.Duration
	requiredVersions map[string]string
	progress         ProgressFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxTestItems limits the run to a reproducible sample of n items.
func WithMaxTestItems(n int) Option {
	return func(r *Runner) {
		r.maxTestItems = &n
	}
}

// WithCaching turns the response caches on or off. Caching is on by default.
func WithCaching(enabled bool) Option {
	return func(r *Runner) {
		r.caching = enabled
	}
}

// WithProgressBar turns the terminal progress bar on or off.
func WithProgressBar(enabled bool) Option {
	return func(r *Runner) {
		r.progressBar = enabled
	}
}

// WithWorkers processes up to n test items at once. The default of 1 runs
// items strictly one after another.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithCallTimeout bounds every SUT and annotator call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.callTimeout = d
	}
}

// WithDependencyVersions pins dependencies to versions that must already be stored.
func WithDependencyVersions(versions map[string]string) Option {
	return func(r *Runner) {
		r.requiredVersions = versions
	}
}

// NewRunner creates a runner that keeps caches and dependencies under dataDir.
func NewRunner(dataDir string, opts ...Option) *Runner {
	r := &Runner{
		dataDir: dataDir,
		caching: true,
		workers: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetProgressFunc sets the progress callback.
func (r *Runner) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// Run evaluates s against every item of test and returns the record of the
// run. The first failing item aborts the run; no partial record is returned.
func (r *Runner) Run(ctx context.Context, test testsuite.Test, s sut.SUT) (*record.TestRecord, error) {
	if err := preflight(test, s); err != nil {
		return nil, err
	}
	if err := r.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	testDir := filepath.Join(r.dataDir, "tests", identity.StorageName(test.UID()))

	sutCache, err := r.newCache(filepath.Join(testDir, "suts"), s.UID())
	if err != nil {
		return nil, err
	}
	annotators, err := r.bindAnnotators(test, filepath.Join(testDir, "annotators"))
	if err != nil {
		return nil, err
	}

	helper := dependency.NewFromSourceHelper(filepath.Join(testDir, "dependency_data"), test.Dependencies(), r.requiredVersions)
	items, err := test.MakeTestItems(ctx, helper)
	if err != nil {
		return nil, fmt.Errorf("failed to make test items for %s: %w", test.UID(), err)
	}
	if r.maxTestItems != nil {
		items = sampleItems(items, *r.maxTestItems)
	}

	slog.Info("running test",
		"test", test.UID(),
		"sut", s.UID(),
		"items", len(items),
		"annotators", len(annotators),
		"workers", r.workers,
		"caching", r.caching,
	)

	proc := &itemProcessor{
		test:        test,
		sut:         s,
		sutCache:    sutCache,
		annotators:  annotators,
		callTimeout: r.callTimeout,
	}
	records, err := r.processAll(ctx, proc, items)
	if err != nil {
		return nil, err
	}

	measured := make([]testsuite.MeasuredTestItem, len(records))
	for i, rec := range records {
		measured[i] = testsuite.MeasuredTestItem{TestItem: rec.TestItem, Measurements: rec.Measurements}
	}
	results, err := test.AggregateMeasurements(measured)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate measurements for %s: %w", test.UID(), err)
	}

	stats := map[string]cache.Stats{"sut": sutCache.Stats()}
	for _, a := range annotators {
		stats[a.key] = a.cache.Stats()
	}

	slog.Info("test run complete",
		"test", test.UID(),
		"sut", s.UID(),
		"items", len(records),
		"cache_hits", stats["sut"].Hits,
		"cache_misses", stats["sut"].Misses,
		"duration", time.Since(start),
	)

	return &record.TestRecord{
		RunID:              fmt.Sprintf("%s_%s_%s", identity.SafeName(test.UID()), start.Format("20060102-150405"), uuid.NewString()[:8]),
		RunTimestamp:       start.UTC(),
		TestUID:            test.UID(),
		TestInitialization: test.InitializationRecord(),
		DependencyVersions: helper.VersionsUsed(),
		SUTUID:             s.UID(),
		SUTInitialization:  s.InitializationRecord(),
		TestItemRecords:    records,
		Results:            results,
		CacheStats:         stats,
	}, nil
}

func preflight(test testsuite.Test, s sut.SUT) error {
	if err := identity.Validate(test); err != nil {
		return &PreflightError{Err: fmt.Errorf("test: %w", err)}
	}
	if err := identity.Validate(s); err != nil {
		return &PreflightError{Err: fmt.Errorf("SUT: %w", err)}
	}
	if err := sut.CheckCapabilities(s, test.RequiredCapabilities()); err != nil {
		return &PreflightError{Err: err}
	}
	return nil
}

func (r *Runner) validate() error {
	if r.maxTestItems != nil && *r.maxTestItems <= 0 {
		return &ConfigError{Err: fmt.Errorf("%w, got %d", ErrInvalidMaxTestItems, *r.maxTestItems)}
	}
	if r.workers < 1 {
		return &ConfigError{Err: fmt.Errorf("workers must be at least 1, got %d", r.workers)}
	}
	if r.callTimeout < 0 {
		return &ConfigError{Err: fmt.Errorf("call timeout must not be negative, got %s", r.callTimeout)}
	}
	return nil
}

func (r *Runner) newCache(dir, scope string) (cache.Cache, error) {
	if !r.caching {
		return cache.NewNoCache(), nil
	}
	c, err := cache.NewBolt(dir, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache for %s: %w", scope, err)
	}
	return c, nil
}

// bindAnnotators gives every annotator its own cache, in key order.
func (r *Runner) bindAnnotators(test testsuite.Test, dir string) ([]boundAnnotator, error) {
	anns := test.Annotators()
	out := make([]boundAnnotator, 0, len(anns))
	for _, key := range slices.Sorted(maps.Keys(anns)) {
		c, err := r.newCache(dir, key)
		if err != nil {
			return nil, err
		}
		out = append(out, boundAnnotator{key: key, annotator: anns[key], cache: c})
	}
	return out, nil
}

// sampleItems shuffles items with a freshly seeded generator and keeps the
// first n. Every call starts from the same seed, so the same input always
// yields the same sample.
func sampleItems(items []testsuite.TestItem, n int) []testsuite.TestItem {
	if n >= len(items) {
		return items
	}
	shuffled := slices.Clone(items)
	rng := rand.New(rand.NewPCG(sampleSeed, sampleSeed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

// processAll runs every item and returns the records in input order.
func (r *Runner) processAll(ctx context.Context, proc *itemProcessor, items []testsuite.TestItem) ([]record.TestItemRecord, error) {
	display := progress.New(len(items), proc.test.UID(), r.progressBar)
	defer display.Close()

	var mu sync.Mutex
	done := 0
	advance := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		display.Advance()
		if r.progress != nil {
			r.progress(done, len(items))
		}
	}

	records := make([]record.TestItemRecord, len(items))

	if r.workers == 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				slog.Warn("test run cancelled", "completed", i, "total", len(items))
				return nil, err
			}
			rec, err := proc.process(ctx, i, item)
			if err != nil {
				return nil, err
			}
			records[i] = rec
			advance()
		}
		return records, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := proc.process(gctx, i, item)
			if err != nil {
				return err
			}
			records[i] = rec
			advance()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
