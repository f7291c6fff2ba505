package convert

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ConvertBatch runs requests through the registry concurrently, capped at
// limit parallel conversions (0 means unlimited). responses is aligned
// with requests; a nil entry marks a failed request, reported in failures.
// A strict request that fails cancels the remaining work and its error is
// returned alongside the partial results.
func ConvertBatch(ctx context.Context, registry *Registry, requests []*Request, limit int) (responses []*Response, failures []*BatchError) {
	responses = make([]*Response, len(requests))
	errs := make([]error, len(requests))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			converter, err := registry.Create(req.SourceFormat, req.TargetFormat)
			if err == nil {
				responses[i], err = converter.Convert(ctx, req)
			}

			if err != nil {
				if req.Config.Strict {
					return &BatchError{Index: i, Err: err}
				}

				errs[i] = err
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if batchErr, ok := err.(*BatchError); ok {
			errs[batchErr.Index] = batchErr.Err
		}
	}

	for i, err := range errs {
		if err != nil {
			failures = append(failures, &BatchError{Index: i, Err: err})
		}
	}

	return responses, failures
}
