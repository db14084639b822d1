// Package app assembles the classifier from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"docrag/internal/config"
	"docrag/internal/dataset"
	"docrag/internal/embedding"
	"docrag/internal/embedding/openai"
	"docrag/internal/embedding/random"
	"docrag/internal/embedding/tfidf"
	"docrag/internal/extract"
	"docrag/internal/logger"
	"docrag/internal/normalize"
	"docrag/internal/pipeline"
	"docrag/internal/service"
	"docrag/internal/store/sqlite"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/memory"
	"docrag/internal/vectorstore/qdrant"
)

// App holds the assembled components.
type App struct {
	Config    *config.AppConfig
	Selection embedding.Selection
	Index     vectorstore.Index
	Retrieval *service.RetrievalService
	Pipeline  *pipeline.Pipeline
	Store     *sqlite.Store
}

// New builds every component named by cfg. The returned App owns the record
// store; call Close when done.
func New(cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sel, err := embedding.Select(Candidates(cfg), embedding.SelectOptions{
		Strict:    cfg.Embedder.Strict,
		Dimension: cfg.Index.Dimension,
		Seed:      cfg.Embedder.Seed,
		OnSkip: func(name string, err error) {
			logger.Info("Skipping embedding provider %s: %v", name, err)
		},
	})
	if err != nil {
		return nil, err
	}

	table, err := predicateTable(cfg.Normalizer)
	if err != nil {
		return nil, err
	}

	opts := vectorstore.Options{
		Dimension:       cfg.Index.Dimension,
		StrictDimension: cfg.Index.StrictDimension,
		Provider:        sel.Provider,
	}
	var idx vectorstore.Index
	switch cfg.Index.Type {
	case "memory", "":
		idx, err = memory.New(sel.Embedder, opts)
	case "qdrant":
		q := cfg.Index.Qdrant
		idx, err = qdrant.New(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}, sel.Embedder, opts)
	default:
		err = fmt.Errorf("unknown index: %s", cfg.Index.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("index init failed: %w", err)
	}

	retrieval := service.NewRetrievalService(idx, normalize.New(table), service.Options{
		TopK:        cfg.Retrieval.TopK,
		TripletTopK: cfg.Retrieval.TripletTopK,
	})

	a := &App{Config: cfg, Selection: sel, Index: idx, Retrieval: retrieval}
	popts := []pipeline.Option{pipeline.WithWorkers(cfg.Retrieval.Workers)}
	if cfg.Store.Type == "sqlite" {
		st, err := sqlite.NewStore(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("store init failed: %w", err)
		}
		a.Store = st
		popts = append(popts, pipeline.WithStore(st))
	}
	a.Pipeline = pipeline.New(extract.NewHeuristic(), retrieval, popts...)
	return a, nil
}

// Candidates turns the configured provider list into ranked candidates.
func Candidates(cfg *config.AppConfig) []embedding.Candidate {
	var out []embedding.Candidate
	for _, name := range cfg.Embedder.Providers {
		switch name {
		case openai.ProviderName:
			oc := cfg.Embedder.OpenAI
			if oc == nil {
				oc = &config.OpenAIEmbedderConfig{APIKeyEnv: "OPENAI_API_KEY"}
			}
			out = append(out, embedding.Candidate{Name: name, Build: func() (embedding.Embedder, error) {
				client, err := openai.NewClient(openai.Config{
					BaseURL:           oc.BaseURL,
					APIKeyEnv:         oc.APIKeyEnv,
					Model:             oc.Model,
					Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
					BatchSize:         oc.BatchSize,
					RequestsPerSecond: oc.RequestsPerSecond,
					MaxRetries:        oc.MaxRetries,
				})
				if err != nil {
					return nil, err
				}
				if cfg.Embedder.Cache {
					return embedding.NewCached(client), nil
				}
				return client, nil
			}})
		case tfidf.ProviderName:
			maxFeatures := cfg.Embedder.TFIDF.MaxFeatures
			if maxFeatures <= 0 {
				maxFeatures = cfg.Index.Dimension
			}
			out = append(out, embedding.Candidate{Name: name, Build: func() (embedding.Embedder, error) {
				return tfidf.NewVectorizer(maxFeatures), nil
			}})
		case random.ProviderName:
			out = append(out, embedding.Candidate{Name: name, Build: func() (embedding.Embedder, error) {
				return random.New(cfg.Index.Dimension, cfg.Embedder.Seed), nil
			}})
		}
	}
	return out
}

func predicateTable(cfg config.NormalizerConfig) (*normalize.PredicateTable, error) {
	if cfg.ReplaceDefaults {
		t, err := normalize.NewPredicateTable(cfg.Predicates)
		if err != nil {
			return nil, fmt.Errorf("normalizer predicates: %w", err)
		}
		return t, nil
	}
	if len(cfg.Predicates) == 0 {
		return normalize.DefaultPredicates(), nil
	}
	t, err := normalize.DefaultPredicates().Merge(cfg.Predicates)
	if err != nil {
		return nil, fmt.Errorf("normalizer predicates: %w", err)
	}
	return t, nil
}

// Close releases the record store and any remote index state.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.Index.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// Source tells where Bootstrap took its records from.
type Source string

// Bootstrap sources.
const (
	SourceStore   Source = "store"
	SourceDataset Source = "dataset"
	SourceEmpty   Source = "empty"
)

// BootstrapResult describes a Bootstrap run.
type BootstrapResult struct {
	Source  Source `json:"source"`
	Records int    `json:"records"`
}

// Bootstrap fills the index: from the record store when it holds records,
// otherwise from the configured dataset. A missing dataset leaves the index
// empty.
func (a *App) Bootstrap(ctx context.Context) (BootstrapResult, error) {
	n, err := a.Pipeline.Restore(ctx)
	if err != nil {
		return BootstrapResult{}, err
	}
	if n > 0 {
		return BootstrapResult{Source: SourceStore, Records: n}, nil
	}
	return a.IndexDataset(ctx, a.Config.Dataset.Path)
}

// IndexDataset indexes the dataset at path and, once that succeeds, replaces
// the record store contents with it.
func (a *App) IndexDataset(ctx context.Context, path string) (BootstrapResult, error) {
	records, err := dataset.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Dataset %s not found; starting with an empty index", path)
			return BootstrapResult{Source: SourceEmpty}, nil
		}
		return BootstrapResult{}, err
	}
	sum, err := a.Pipeline.Reindex(ctx, records)
	if err != nil {
		return BootstrapResult{}, err
	}
	return BootstrapResult{Source: SourceDataset, Records: sum.Triplets}, nil
}
