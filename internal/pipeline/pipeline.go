// Package pipeline runs summaries through extraction, normalization,
// retrieval and evaluation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"docrag/internal/dataset"
	"docrag/internal/domain"
	"docrag/internal/evaluation"
	"docrag/internal/logger"
	"docrag/internal/service"
	"docrag/internal/store/sqlite"
	"docrag/internal/telemetry"
)

// RecordStore persists canonical records between runs.
type RecordStore interface {
	SaveRecords(ctx context.Context, texts []string, metas []domain.Metadata) error
	ReplaceRecords(ctx context.Context, texts []string, metas []domain.Metadata) error
	LoadRecords(ctx context.Context) ([]string, []domain.Metadata, error)
	Count(ctx context.Context) (int, error)
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)
}

// Pipeline classifies document summaries against an indexed dataset.
type Pipeline struct {
	extractor domain.Extractor
	retrieval *service.RetrievalService
	store     RecordStore
	workers   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists indexed records to store.
func WithStore(store RecordStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithWorkers sets how many summaries Evaluate classifies concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a pipeline.
func New(extractor domain.Extractor, retrieval *service.RetrievalService, opts ...Option) *Pipeline {
	p := &Pipeline{extractor: extractor, retrieval: retrieval, workers: 4}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieval returns the retrieval service.
func (p *Pipeline) Retrieval() *service.RetrievalService { return p.retrieval }

// IndexSummary describes what LoadAndIndex added.
type IndexSummary struct {
	Records  int `json:"records"`
	Triplets int `json:"triplets"`
	// Empty counts records that produced no triplets.
	Empty int `json:"empty"`
}

// LoadAndIndex extracts triplets for every record and adds them to the index
// in a single batch. Records carrying triplets skip extraction. Indexed
// records are appended to the store.
func (p *Pipeline) LoadAndIndex(ctx context.Context, records []dataset.Record) (IndexSummary, error) {
	return p.index(ctx, records, false)
}

// Reindex is LoadAndIndex for a fresh index: once indexing succeeds the
// store contents are replaced by the new records. A failure leaves the store
// untouched.
func (p *Pipeline) Reindex(ctx context.Context, records []dataset.Record) (IndexSummary, error) {
	return p.index(ctx, records, true)
}

func (p *Pipeline) index(ctx context.Context, records []dataset.Record, replace bool) (IndexSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.index", attribute.Int("records", len(records)))
	defer span.End()

	var sum IndexSummary
	var triplets []domain.Triplet
	var metas []domain.Metadata
	for i, rec := range records {
		ts := rec.Triplets
		if len(ts) == 0 {
			var err error
			ts, err = p.extractor.Extract(ctx, rec.Summary)
			if err != nil {
				span.RecordError(err)
				return sum, fmt.Errorf("extract record %d: %w", i, err)
			}
		}
		sum.Records++
		if len(ts) == 0 {
			sum.Empty++
			logger.Debug("Record %d (%s) produced no triplets", i, rec.DocCode)
			continue
		}
		meta := rec.Metadata()
		for _, t := range ts {
			triplets = append(triplets, t)
			metas = append(metas, meta)
		}
	}
	sum.Triplets = len(triplets)
	if len(triplets) > 0 {
		if err := p.retrieval.IndexTriplets(ctx, triplets, metas); err != nil {
			span.RecordError(err)
			return sum, err
		}
	}
	if p.store != nil && (replace || len(triplets) > 0) {
		persist := p.store.SaveRecords
		if replace {
			persist = p.store.ReplaceRecords
		}
		if err := persist(ctx, p.retrieval.Texts(triplets), metas); err != nil {
			return sum, fmt.Errorf("persist records: %w", err)
		}
		if len(triplets) > 0 {
			p.saveIndexMeta(ctx)
		}
	}
	if len(triplets) == 0 {
		return sum, nil
	}
	logger.Info("Indexed %d triplets from %d records", sum.Triplets, sum.Records)
	return sum, nil
}

func (p *Pipeline) saveIndexMeta(ctx context.Context) {
	idx := p.retrieval.Index()
	if err := p.store.SetMeta(ctx, sqlite.MetaProvider, idx.Provider()); err != nil {
		logger.Warn("Could not record embedding provider: %v", err)
	}
	if err := p.store.SetMeta(ctx, sqlite.MetaDimension, strconv.Itoa(idx.Stats().Dimension)); err != nil {
		logger.Warn("Could not record index dimension: %v", err)
	}
}

// Restore re-embeds the records held by the store. It returns the number of
// restored records; an empty or missing store restores nothing.
func (p *Pipeline) Restore(ctx context.Context) (int, error) {
	if p.store == nil {
		return 0, nil
	}
	texts, metas, err := p.store.LoadRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	if len(texts) == 0 {
		return 0, nil
	}
	idx := p.retrieval.Index()
	if prev, err := p.store.GetMeta(ctx, sqlite.MetaProvider); err == nil && prev != idx.Provider() {
		logger.Warn("Records were indexed with %q, restoring with %q", prev, idx.Provider())
	}
	if err := idx.Add(ctx, texts, metas); err != nil {
		return 0, fmt.Errorf("restore index: %w", err)
	}
	logger.Info("Restored %d records from store", len(texts))
	return len(texts), nil
}

// Result is the outcome of classifying one summary. Empty SummaryType and
// DocCode mean no prediction.
type Result struct {
	SummaryType string                 `json:"summary_type"`
	DocCode     string                 `json:"doc_code"`
	Triplets    []domain.Triplet       `json:"triplets"`
	Matches     []domain.TripletResult `json:"matches"`
	Metrics     evaluation.Report      `json:"metrics"`
	Error       string                 `json:"error,omitempty"`
}

// Decision returns the predicted labels.
func (r Result) Decision() domain.Decision {
	return domain.Decision{DocType: r.SummaryType, DocCode: r.DocCode}
}

// Run classifies summary. When truth is nil the metrics carry the
// no_ground_truth marker. Extraction or retrieval failures degrade to an
// empty decision with Error set; only context errors are returned.
func (p *Pipeline) Run(ctx context.Context, summary string, truth *domain.Decision) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.run")
	defer span.End()

	res := Result{Triplets: []domain.Triplet{}, Matches: []domain.TripletResult{}}
	var decision domain.Decision

	triplets, err := p.extractor.Extract(ctx, summary)
	if err == nil {
		norm := p.retrieval.Normalizer()
		for _, t := range triplets {
			res.Triplets = append(res.Triplets, norm.Normalize(t))
		}
		var matches []domain.TripletResult
		decision, matches, err = p.retrieval.RetrieveDetailed(ctx, triplets)
		if matches != nil {
			res.Matches = matches
		}
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return res, err
		}
		span.RecordError(err)
		logger.Warn("Classification failed: %v", err)
		telemetry.Classifications.WithLabelValues("error").Inc()
		res.Error = err.Error()
		decision = domain.Decision{}
		truth = nil
	} else if decision.Empty() {
		telemetry.Classifications.WithLabelValues("no_match").Inc()
	} else {
		telemetry.Classifications.WithLabelValues("matched").Inc()
	}

	res.SummaryType, res.DocCode = decision.DocType, decision.DocCode
	var truths []domain.Decision
	if truth != nil {
		truths = []domain.Decision{*truth}
	}
	res.Metrics, _ = evaluation.Evaluate([]domain.Decision{decision}, truths)
	span.SetAttributes(attribute.String("doc_type", decision.DocType), attribute.Int("triplets", len(triplets)))
	return res, nil
}

// Evaluate classifies every record summary and scores the predictions
// against the record labels.
func (p *Pipeline) Evaluate(ctx context.Context, records []dataset.Record) (evaluation.Report, []Result, error) {
	results := make([]Result, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, rec := range records {
		g.Go(func() error {
			truth := rec.Decision()
			r, err := p.Run(gctx, rec.Summary, &truth)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return evaluation.Report{}, nil, err
	}

	preds := make([]domain.Decision, len(records))
	truths := make([]domain.Decision, len(records))
	for i, rec := range records {
		preds[i] = results[i].Decision()
		truths[i] = rec.Decision()
	}
	report, err := evaluation.Evaluate(preds, truths)
	if err != nil {
		return evaluation.Report{}, nil, err
	}
	return report, results, nil
}
