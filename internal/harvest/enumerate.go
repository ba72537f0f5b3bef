package harvest

import (
	"context"
	"fmt"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// Harvester runs the scan loops against one UI.
type Harvester struct {
	opts  Options
	clock clock.Clock
}

// New returns a Harvester. A nil clock sleeps on the wall clock.
func New(opts Options, c clock.Clock) *Harvester {
	if c == nil {
		c = clock.Real{}
	}
	return &Harvester{opts: opts.withDefaults(), clock: c}
}

// Options returns the effective options.
func (h *Harvester) Options() Options {
	return h.opts
}

// Source describes the items of a virtualized list. Rank reports ok=false for
// items that carry no rank signal; those are ignored. Any error from the
// three functions skips the item for this iteration.
type Source[K comparable] struct {
	Items    ui.Locator
	Rank     func(item ui.Node) (rank int, ok bool, err error)
	Identity func(item ui.Node) (K, error)
	Relevant func(item ui.Node) (bool, error)
}

// frame is what one iteration saw.
type frame struct {
	items   int
	ranked  int
	edge    int
	hasEdge bool
}

// Enumerate scrolls container forward until three consecutive offset
// readings are equal, then reverses and scans back until the offset stalls
// again. Items are queried under root on every iteration. The identities of
// relevant items are returned once each, in first-seen order.
func Enumerate[K comparable](ctx context.Context, h *Harvester, root ui.Node, container ui.Scrollable, src Source[K]) ([]K, error) {
	if root == nil || container == nil {
		return nil, fmt.Errorf("enumerate: no container: %w", ErrPrecondition)
	}
	if src.Rank == nil || src.Identity == nil {
		return nil, fmt.Errorf("enumerate: incomplete source: %w", ErrPrecondition)
	}

	timer := logging.StartTimer(logging.CategoryHarvest, "enumerate")
	defer timer.Stop()

	st := NewScrollState(h.opts.Speed.Initial, Forward)
	seen := make(map[K]struct{})
	var out []K
	reversed := false

	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if h.opts.MaxIterations > 0 && iter > h.opts.MaxIterations {
			logging.HarvestWarn("enumerate: iteration limit %d reached with %d items", h.opts.MaxIterations, len(out))
			return out, nil
		}

		offset, err := container.ScrollOffset()
		if err != nil {
			return out, fmt.Errorf("enumerate: read offset: %w: %w", ErrPrecondition, err)
		}

		prevBest, hadBest := st.Best()
		fr, err := scanFrame(root, st, src, seen, &out)
		if err != nil {
			return out, err
		}

		st.Observe(offset)
		logging.HarvestDebug("enumerate iter=%d dir=%s offset=%d stable=%d speed=%d items=%d ranked=%d found=%d",
			iter, st.Direction, offset, st.StableCount, st.Speed, fr.items, fr.ranked, len(out))

		if st.StableCount >= h.opts.StallThreshold {
			if reversed {
				logging.Harvest("enumerate: done after %d iterations, %d items", iter, len(out))
				return out, nil
			}
			logging.Harvest("enumerate: end of list at offset %d, rescanning %s", offset, Backward)
			st.reverse()
			reversed = true
		} else if hadBest && fr.hasEdge {
			st.Speed = h.opts.Speed.Adjust(st.Speed, prevBest, fr.edge, st.Direction)
		}

		if err := container.ScrollBy(st.Direction.sign() * st.Speed); err != nil {
			return out, fmt.Errorf("enumerate: scroll: %w", err)
		}
		if err := h.clock.Sleep(ctx, h.opts.Pause); err != nil {
			return out, err
		}
	}
}

// scanFrame reads every visible item once, folding ranks into st and adding
// new relevant identities to out.
func scanFrame[K comparable](root ui.Node, st *ScrollState, src Source[K], seen map[K]struct{}, out *[]K) (frame, error) {
	var fr frame
	items, err := root.FindAll(src.Items)
	if err != nil {
		if ui.IsStale(err) {
			return fr, nil
		}
		return fr, fmt.Errorf("enumerate: query items: %w", err)
	}
	fr.items = len(items)

	for _, item := range items {
		rank, ok, err := src.Rank(item)
		if err != nil || !ok {
			continue
		}
		fr.ranked++
		st.observeRank(rank)
		// The leading edge is the first rank seen going forward and the last going backward.
		if !fr.hasEdge || st.Direction == Backward {
			fr.edge, fr.hasEdge = rank, true
		}

		if src.Relevant != nil {
			relevant, err := src.Relevant(item)
			if err != nil || !relevant {
				continue
			}
		}
		id, err := src.Identity(item)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		*out = append(*out, id)
	}
	return fr, nil
}
