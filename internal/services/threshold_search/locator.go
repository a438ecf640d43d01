// Package threshold_search locates the lowest height at which a monotonic
// predicate over the chain becomes true, using binary search over a closed
// height range.
//
// Predicates are tri-state: a remote failure yields Indeterminate, which the
// search never treats as an answer. The narrowing policy on Indeterminate is
// deliberately conservative (hi = mid - 1): an unconfirmed probe must never
// expand the assumed-true region, so the search may miss a threshold that
// sits inside a cluster of indeterminate heights. The outcome records this
// via ExhaustedByIndeterminate so callers can tell "not found" apart from
// "could not confirm".
package threshold_search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archon-research/proxy-audit/internal/domain/entity"
)

// Predicate evaluates a monotonic condition at a single height. For any
// search to be meaningful the predicate must be false below some threshold
// and true at and above it; Indeterminate is reserved for evaluations that
// could not be confirmed.
type Predicate func(ctx context.Context, height uint64) entity.Tristate

// Locator performs monotonic threshold searches.
type Locator struct {
	logger *slog.Logger
}

// NewLocator creates a Locator. A nil logger falls back to slog.Default().
func NewLocator(logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{logger: logger.With("component", "threshold-search")}
}

// FindThreshold searches [lo, hi] for the lowest height where pred is true.
//
// Each probe depends on the previous outcome, so evaluation is strictly
// sequential. The search terminates after O(log(hi-lo)) probes. An error is
// returned only for an invalid range or a cancelled context; everything the
// predicate reports, including total indeterminacy, is expressed in the
// outcome instead.
func (l *Locator) FindThreshold(ctx context.Context, pred Predicate, lo, hi uint64) (entity.SearchOutcome, error) {
	if pred == nil {
		return entity.SearchOutcome{}, fmt.Errorf("pred cannot be nil")
	}
	if lo > hi {
		return entity.SearchOutcome{}, fmt.Errorf("invalid search range [%d, %d]", lo, hi)
	}

	outcome := entity.SearchOutcome{Reason: entity.ReasonNeverTrue}

	for lo <= hi {
		if err := ctx.Err(); err != nil {
			return outcome, fmt.Errorf("search cancelled after %d probes: %w", outcome.Probes, err)
		}

		mid := lo + (hi-lo)/2
		result := pred(ctx, mid)
		outcome.Probes++

		l.logger.Debug("probed height", "height", mid, "result", result.String(), "lo", lo, "hi", hi)

		switch result {
		case entity.True:
			outcome.Found = true
			outcome.Height = mid
			outcome.Reason = entity.ReasonNone
			if mid == 0 {
				return outcome, nil
			}
			hi = mid - 1
		case entity.False:
			lo = mid + 1
		default:
			// Indeterminate: never trust it as "not yet true". Narrow
			// downward like a True, but record that the search gave
			// ground it could not verify.
			outcome.ExhaustedByIndeterminate = true
			if mid == 0 {
				return outcome, nil
			}
			hi = mid - 1
		}
	}

	return outcome, nil
}
