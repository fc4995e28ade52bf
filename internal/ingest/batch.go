package ingest

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/regsight/regsight/internal/model"
)

// CandidateError pairs a failed candidate with the error that rejected it.
type CandidateError struct {
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// BatchResult summarizes one batch run. ExpectedIdentifiers is every
// identifier the batch attempted, the input to post-batch reconciliation.
type BatchResult struct {
	Resolutions         []Resolution     `json:"resolutions"`
	Failed              []CandidateError `json:"failed"`
	Inserted            int              `json:"inserted"`
	Updated             int              `json:"updated"`
	Skipped             int              `json:"skipped"`
	ExpectedIdentifiers []string         `json:"expected_identifiers"`
}

// Processor runs candidates through the resolver on a bounded worker pool.
// Different identifiers proceed in parallel; the ledger serializes within
// an identifier.
type Processor struct {
	resolver *Resolver
	workers  int
	logger   *slog.Logger
}

// NewProcessor creates a Processor. workers <= 0 falls back to 4.
func NewProcessor(resolver *Resolver, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 4
	}
	return &Processor{resolver: resolver, workers: workers, logger: logger}
}

// ProcessBatch resolves every candidate. Per-record failures (validation,
// version conflicts) are collected, not fatal: the rest of the batch
// continues. Only context cancellation stops the run early; cancellation
// means "stop submitting candidates", and any candidate already resolved
// stays resolved.
func (p *Processor) ProcessBatch(ctx context.Context, candidates []model.Candidate, actor string) BatchResult {
	resolutions := make([]*Resolution, len(candidates))
	errs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, cand := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			res, err := p.resolver.Resolve(gctx, cand, actor)
			if err != nil {
				errs[i] = err
				return nil
			}
			resolutions[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i, cand := range candidates {
		result.ExpectedIdentifiers = append(result.ExpectedIdentifiers, cand.Identifier)
		if errs[i] != nil {
			p.logger.Warn("ingest: candidate failed", "identifier", cand.Identifier, "error", errs[i])
			result.Failed = append(result.Failed, CandidateError{
				Identifier: cand.Identifier,
				Error:      errs[i].Error(),
			})
			continue
		}
		res := *resolutions[i]
		result.Resolutions = append(result.Resolutions, res)
		switch res.Action {
		case ActionInsert:
			result.Inserted++
		case ActionUpdate:
			result.Updated++
		case ActionSkip:
			result.Skipped++
		}
	}

	p.logger.Info("ingest: batch complete",
		"candidates", len(candidates),
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
	)
	return result
}
