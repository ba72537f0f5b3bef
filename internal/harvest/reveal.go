package harvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/stall"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// StallResolver diagnoses a stalled chat and performs any corrective action.
type StallResolver interface {
	Resolve(ctx context.Context) (stall.Diagnosis, error)
}

// RevealOutcome says why RevealUntilTop stopped.
type RevealOutcome int

const (
	// RevealTopBanner means the client reported the start of history.
	RevealTopBanner RevealOutcome = iota
	// RevealStallCeiling means the offset stopped changing for too long.
	RevealStallCeiling
	// RevealIterationLimit means MaxIterations was reached.
	RevealIterationLimit
)

func (o RevealOutcome) String() string {
	switch o {
	case RevealTopBanner:
		return "top_banner"
	case RevealStallCeiling:
		return "stall_ceiling"
	default:
		return "iteration_limit"
	}
}

// RevealStats summarises one RevealUntilTop run.
type RevealStats struct {
	Iterations int
	Stalls     int
	Diagnoses  map[stall.Diagnosis]int
	Outcome    RevealOutcome
}

// RevealUntilTop scrolls container toward its origin until the whole
// history is loaded. Every stalled reading is handed to resolver (which may
// be nil). A syncing diagnosis is waited out; once syncing ends the stall
// count starts over. A top-of-history diagnosis ends the run at once.
func (h *Harvester) RevealUntilTop(ctx context.Context, container ui.Scrollable, resolver StallResolver) (RevealStats, error) {
	stats := RevealStats{Diagnoses: make(map[stall.Diagnosis]int)}
	if container == nil {
		return stats, fmt.Errorf("reveal: no container: %w", ErrPrecondition)
	}

	timer := logging.StartTimer(logging.CategoryHarvest, "reveal")
	defer timer.Stop()

	st := NewScrollState(h.opts.RevealStep, Backward)
	for iter := 1; ; iter++ {
		stats.Iterations = iter
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if h.opts.MaxIterations > 0 && iter > h.opts.MaxIterations {
			logging.HarvestWarn("reveal: iteration limit %d reached", h.opts.MaxIterations)
			stats.Outcome = RevealIterationLimit
			return stats, nil
		}

		offset, err := container.ScrollOffset()
		if err != nil {
			return stats, fmt.Errorf("reveal: read offset: %w: %w", ErrPrecondition, err)
		}

		if st.Observe(offset) {
			stats.Stalls++
			// Consulted on every stalled tick: a banner that persists has its
			// control clicked again each time, up to RevealStallCeiling.
			if resolver != nil {
				top, err := h.consult(ctx, st, resolver, &stats)
				if err != nil {
					return stats, err
				}
				if top {
					stats.Outcome = RevealTopBanner
					logging.Harvest("reveal: start of history after %d iterations", iter)
					return stats, nil
				}
			}
			if st.StableCount >= h.opts.RevealStallCeiling {
				stats.Outcome = RevealStallCeiling
				logging.Harvest("reveal: offset %d unchanged %d times, assuming start of history", offset, st.StableCount)
				return stats, nil
			}
		}

		if err := container.ScrollBy(st.Direction.sign() * st.Speed); err != nil {
			return stats, fmt.Errorf("reveal: scroll: %w", err)
		}
		if err := h.clock.Sleep(ctx, h.opts.RevealPause); err != nil {
			return stats, err
		}
	}
}

// consult asks the resolver about the current stall. It reports whether the
// start of history was reached. Only context errors are returned; other
// resolver failures count as an unknown diagnosis.
func (h *Harvester) consult(ctx context.Context, st *ScrollState, resolver StallResolver, stats *RevealStats) (bool, error) {
	d, err := resolver.Resolve(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		logging.StallWarn("resolve failed, counting as %s: %v", stall.Unknown, err)
		d = stall.Unknown
	}
	stats.Diagnoses[d]++
	logging.Stall("stall %d diagnosed as %s", st.StableCount, d)

	switch d {
	case stall.TopReached:
		return true, nil
	case stall.StillSyncing:
	default:
		return false, nil
	}

	if err := h.clock.Sleep(ctx, h.opts.SyncCooldown); err != nil {
		return false, err
	}
	top := false
	attempts, err := clock.Poll(ctx, h.clock, h.opts.SyncPollInterval, h.opts.SyncPollCeiling, func() (bool, error) {
		d, err := resolver.Resolve(ctx)
		if err != nil {
			return false, err
		}
		top = d == stall.TopReached
		return d != stall.StillSyncing, nil
	})
	switch {
	case err == nil:
		logging.Stall("sync finished after %d polls", attempts)
		st.StableCount = 0
	case errors.Is(err, clock.ErrPollExhausted):
		logging.StallWarn("still syncing after %d polls", attempts)
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		logging.StallWarn("sync poll failed: %v", err)
	}
	return top, nil
}
