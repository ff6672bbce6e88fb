package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/hygeia-go/internal/cache"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/explore"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/metrics"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/raphaelgruber/hygeia-go/internal/modelspec"
	"github.com/raphaelgruber/hygeia-go/internal/network"
)

// ErrUnknownAnalysis is returned when no results are loaded for an analysis id.
var ErrUnknownAnalysis = errors.New("no results for analysis")

// Options configures a Session.
type Options struct {
	Bridge  *engine.Bridge
	Logger  *slog.Logger
	Metrics *metrics.Collector
	// CacheCapacity bounds each cache. Zero means cache.DefaultCapacity.
	CacheCapacity int
	Network       network.Options
	Timeout       time.Duration
	KeepWorkdir   bool
	Debug         bool
	// Unlocked allows heavy-analysis settings up to the hard ceilings.
	Unlocked bool
}

// Session is the explicit state of one hygeia process: loaded results, the
// derived-metrics cache, one cache per heavy analysis and the run tracker.
type Session struct {
	opts    Options
	bridge  *engine.Bridge
	logger  *slog.Logger
	metrics *metrics.Collector
	runs    *RunTracker

	derived  *cache.Manager[*models.DerivedMetrics]
	analyses map[guardrail.Analysis]*cache.Manager[*engine.AnalysisRun]

	mu      sync.RWMutex
	results map[string]*models.Results
}

// NewSession creates a Session.
func NewSession(opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Bridge == nil {
		opts.Bridge = engine.New(engine.Config{Command: "Rscript"}, opts.Logger)
	}
	capacity := opts.CacheCapacity
	if capacity <= 0 {
		capacity = cache.DefaultCapacity
	}

	derived, err := cache.New[*models.DerivedMetrics]("derived", capacity, opts.Logger)
	if err != nil {
		return nil, err
	}
	s := &Session{
		opts:     opts,
		bridge:   opts.Bridge,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		runs:     NewRunTracker(DefaultMaxRuns, opts.Logger),
		derived:  derived,
		analyses: make(map[guardrail.Analysis]*cache.Manager[*engine.AnalysisRun]),
		results:  make(map[string]*models.Results),
	}
	for _, a := range []guardrail.Analysis{guardrail.AnalysisBootnet, guardrail.AnalysisNCT, guardrail.AnalysisLasso} {
		m, err := cache.New[*engine.AnalysisRun](string(a), capacity, opts.Logger)
		if err != nil {
			return nil, err
		}
		s.analyses[a] = m
	}
	return s, nil
}

// Runs returns the run tracker.
func (s *Session) Runs() *RunTracker { return s.runs }

// Metrics returns the metrics collector.
func (s *Session) Metrics() *metrics.Collector { return s.metrics }

// Validate checks doc against the contract for kind.
func (s *Session) Validate(kind contract.Kind, doc any) error {
	start := time.Now()
	err := contract.Validate(kind, doc)
	s.metrics.RecordResult(metrics.OpValidate, time.Since(start), err)
	return err
}

// PrepareInput describes how to turn a dataset into a schema and spec.
type PrepareInput struct {
	AnalysisID string
	Meta       dataset.Meta
	// Variables overrides inferred variable descriptors.
	Variables []models.Variable
	Settings  modelspec.Settings
}

// Prepared is a schema and spec pair ready for the engine.
type Prepared struct {
	Schema *models.SchemaDocument `json:"schema"`
	Spec   *models.ModelSpec      `json:"spec"`
}

// Prepare builds and validates the schema and spec documents for data. Both
// documents carry the same analysis id.
func (s *Session) Prepare(data *dataset.Dataset, in PrepareInput) (*Prepared, error) {
	analysisID := in.AnalysisID
	if analysisID == "" {
		analysisID = uuid.New().String()
	}

	schema, err := dataset.BuildSchema(data, dataset.SchemaOptions{
		AnalysisID: analysisID,
		Meta:       in.Meta,
		Variables:  in.Variables,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Validate(contract.KindSchema, schema); err != nil {
		return nil, err
	}

	schemaBytes, err := engine.EncodeDocument(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	dataSHA, err := data.SHA256()
	if err != nil {
		return nil, err
	}

	spec := modelspec.Build(schema, in.Settings, modelspec.BuildOptions{
		SchemaSHA256: cache.SHA256Hex(schemaBytes),
		DataSHA256:   dataSHA,
	})
	if err := s.Validate(contract.KindModelSpec, spec); err != nil {
		return nil, err
	}
	return &Prepared{Schema: schema, Spec: spec}, nil
}

// FitInput is one network fit.
type FitInput struct {
	Data    *dataset.Dataset
	Schema  *models.SchemaDocument
	Spec    *models.ModelSpec
	Timeout time.Duration
	// OnStart, when set, receives the tracked run before the engine starts.
	OnStart func(*Run)
}

func (s *Session) timeout(d time.Duration) time.Duration {
	switch {
	case d > 0:
		return d
	case s.opts.Timeout > 0:
		return s.opts.Timeout
	default:
		return engine.DefaultTimeout
	}
}

// Fit runs the engine and loads the results into the session. Derived
// metrics cached for the same analysis id are discarded.
func (s *Session) Fit(ctx context.Context, in FitInput) (*engine.Run, error) {
	if in.Spec == nil {
		return nil, errors.New("fit: spec is required")
	}
	timeout := s.timeout(in.Timeout)
	run := s.runs.Start("fit", in.Spec.AnalysisID, timeout)
	if in.OnStart != nil {
		in.OnStart(run)
	}
	s.runs.SetRunning(run)

	start := time.Now()
	res, err := s.bridge.Run(ctx, engine.RunInput{
		Data:        in.Data,
		Schema:      in.Schema,
		Spec:        in.Spec,
		Timeout:     timeout,
		Debug:       s.opts.Debug,
		KeepWorkdir: s.opts.KeepWorkdir,
	})
	s.metrics.RecordResult(metrics.OpEngineFit, time.Since(start), err)
	if err != nil {
		s.runs.Fail(run, exitCode(err), err)
		return nil, err
	}
	s.runs.Complete(run, res.Process.ExitCode)

	s.LoadResults(res.Results)
	return res, nil
}

// exitCode extracts the subprocess exit code from an engine error.
func exitCode(err error) int {
	var (
		te *engine.TimeoutError
		me *engine.OutputMissingError
		ie *engine.OutputInvalidError
		pe *engine.ProcessError
	)
	switch {
	case errors.As(err, &te):
		return te.Process.ExitCode
	case errors.As(err, &me):
		return me.Process.ExitCode
	case errors.As(err, &ie):
		return ie.Process.ExitCode
	case errors.As(err, &pe):
		return pe.Process.ExitCode
	}
	return -1
}

// LoadResults makes results available for exploration, replacing any earlier
// results for the same analysis id.
func (s *Session) LoadResults(results *models.Results) {
	s.mu.Lock()
	s.results[results.AnalysisID] = results
	s.mu.Unlock()

	if n := s.derived.Clear(results.AnalysisID); n > 0 {
		s.logger.Info("discarded stale derived metrics", "analysis_id", results.AnalysisID, "entries", n)
	}
}

// Results returns the loaded results for analysisID.
func (s *Session) Results(analysisID string) (*models.Results, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[analysisID]
	return r, ok
}

// Analyses returns the ids of all loaded results, sorted.
func (s *Session) Analyses() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Exploration is the outcome of Explore.
type Exploration struct {
	Config  models.ExploreConfig   `json:"config"`
	Hash    string                 `json:"config_hash"`
	Derived *models.DerivedMetrics `json:"derived"`
	Cached  bool                   `json:"cached"`
	// Warnings are size guardrail adjustments applied to the config.
	Warnings       []guardrail.Warning      `json:"warnings"`
	Recommendation guardrail.Recommendation `json:"recommendation"`
}

// Explore normalizes cfg against the loaded results, applies the size
// guardrails and returns derived metrics, computing them at most once per
// distinct configuration.
func (s *Session) Explore(ctx context.Context, analysisID string, cfg models.ExploreConfig) (*Exploration, error) {
	results, ok := s.Results(analysisID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalysis, analysisID)
	}

	cfg, err := explore.Normalize(cfg, results)
	if err != nil {
		return nil, err
	}
	enforced := guardrail.EnforceExplore(cfg, len(results.Nodes), len(results.Edges))
	cfg = enforced.Config

	hash, err := explore.Hash(analysisID, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	derived, cached, err := s.derived.GetOrCompute(ctx, analysisID, hash, func(context.Context) (*models.DerivedMetrics, error) {
		return network.Derive(results, cfg, s.opts.Network)
	})
	if cached {
		s.metrics.RecordTiming(metrics.OpCacheHit, time.Since(start))
	} else {
		s.metrics.RecordResult(metrics.OpDerive, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	warnings := enforced.Warnings
	if warnings == nil {
		warnings = []guardrail.Warning{}
	}
	return &Exploration{
		Config:         cfg,
		Hash:           hash,
		Derived:        derived,
		Cached:         cached,
		Warnings:       warnings,
		Recommendation: guardrail.Recommend(len(results.Nodes), len(results.Edges)),
	}, nil
}

// AnalysisRequest is one heavy analysis. Settings is the raw, not yet
// normalized guardrail settings value for the analysis.
type AnalysisRequest struct {
	Analysis guardrail.Analysis
	Data     *dataset.Dataset
	Schema   *models.SchemaDocument
	Spec     *models.ModelSpec
	Settings any
	Timeout  time.Duration
	// OnStart, when set, receives the tracked run before the engine starts.
	// It is not called for cached runs.
	OnStart func(*Run)
}

// AnalysisOutcome is the result of RunAnalysis.
type AnalysisOutcome struct {
	Run      *engine.AnalysisRun `json:"run"`
	Settings any                 `json:"settings"`
	Warnings []guardrail.Warning `json:"warnings"`
	Cached   bool                `json:"cached"`
}

// NormalizeSettings applies the guardrails for analysis to settings.
func (s *Session) NormalizeSettings(analysis guardrail.Analysis, settings any, data *dataset.Dataset) (any, []guardrail.Warning, error) {
	rows, cols := 0, 0
	if data != nil {
		rows, cols = data.NumRows(), data.NumCols()
	}
	return guardrail.Normalize(analysis, settings, s.opts.Unlocked, rows, cols)
}

// RunAnalysis normalizes the settings and runs a heavy analysis, reusing a
// cached run for the same dataset and settings. Runs are cached under the
// spec's analysis id, or under the dataset hash when there is no spec.
func (s *Session) RunAnalysis(ctx context.Context, req AnalysisRequest) (*AnalysisOutcome, error) {
	mgr, ok := s.analyses[req.Analysis]
	if !ok {
		return nil, fmt.Errorf("%w: %s", guardrail.ErrUnknownAnalysis, req.Analysis)
	}
	if req.Data == nil {
		return nil, errors.New("analysis: data is required")
	}

	settings, warnings, err := s.NormalizeSettings(req.Analysis, req.Settings, req.Data)
	if err != nil {
		return nil, err
	}

	dataHash, err := req.Data.Hash()
	if err != nil {
		return nil, err
	}
	seed := modelspec.DefaultRandomSeed
	if req.Spec != nil {
		seed = req.Spec.RandomSeed
	}
	analysisID := dataHash
	if req.Spec != nil {
		analysisID = req.Spec.AnalysisID
	}
	key, err := cache.ConfigHash(analysisID, map[string]any{
		"data":     dataHash,
		"settings": settings,
		"seed":     seed,
	})
	if err != nil {
		return nil, err
	}

	timeout := s.timeout(req.Timeout)
	run, cached, err := mgr.GetOrCompute(ctx, analysisID, key, func(ctx context.Context) (*engine.AnalysisRun, error) {
		tracked := s.runs.Start(string(req.Analysis), analysisID, timeout)
		if req.OnStart != nil {
			req.OnStart(tracked)
		}
		s.runs.SetRunning(tracked)

		start := time.Now()
		out, err := s.bridge.RunAnalysis(ctx, engine.AnalysisInput{
			Analysis:    req.Analysis,
			Data:        req.Data,
			Schema:      req.Schema,
			Spec:        req.Spec,
			Settings:    settings,
			Seed:        seed,
			Timeout:     timeout,
			Debug:       s.opts.Debug,
			KeepWorkdir: s.opts.KeepWorkdir,
		})
		s.metrics.RecordResult(metrics.OpAnalysis, time.Since(start), err)
		if err != nil {
			s.runs.Fail(tracked, exitCode(err), err)
			return nil, err
		}
		s.runs.Complete(tracked, out.Process.ExitCode)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	if warnings == nil {
		warnings = []guardrail.Warning{}
	}
	return &AnalysisOutcome{Run: run, Settings: settings, Warnings: warnings, Cached: cached}, nil
}

// ClearCache drops cached derived metrics for analysisID, or every cached
// artifact when analysisID is empty. It returns the removed entry count per
// cache.
func (s *Session) ClearCache(analysisID string) map[string]int {
	removed := make(map[string]int)
	if analysisID == "" {
		removed["derived"] = s.derived.ClearAll()
		for a, m := range s.analyses {
			removed[string(a)] = m.ClearAll()
		}
	} else {
		removed["derived"] = s.derived.Clear(analysisID)
		for a, m := range s.analyses {
			removed[string(a)] = m.Clear(analysisID)
		}
	}
	s.logger.Info("cache cleared", "analysis_id", analysisID, "removed", removed)
	return removed
}

// CacheStats reports every cache owned by the session.
func (s *Session) CacheStats() []cache.Stats {
	stats := []cache.Stats{s.derived.Stats()}
	for _, a := range []guardrail.Analysis{guardrail.AnalysisBootnet, guardrail.AnalysisNCT, guardrail.AnalysisLasso} {
		stats = append(stats, s.analyses[a].Stats())
	}
	return stats
}
