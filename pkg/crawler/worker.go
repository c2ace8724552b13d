package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/pkg/spotify"
)

// runWorker drives one prefix to completion, retrying after upstream 429s
// with jittered exponential backoff. Retries restart from offset zero;
// upserts and completion are idempotent so replayed pages are harmless.
func (c *Crawler) runWorker(ctx context.Context, prefix string) {
	log := c.log.With(
		zap.String("prefix", prefix),
		zap.String("run_id", uuid.NewString()[:8]))
	log.Info("Worker starting")

	for attempt := 0; ; attempt++ {
		err := c.searchPrefix(ctx, log, prefix)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		var ra *spotify.RetryAfterError
		if errors.As(err, &ra) && attempt < c.cfg.MaxRetries {
			// Free the slot while waiting so the scheduler can keep the
			// pool full; the retried walk runs outside the registry like
			// any recovered task.
			if uerr := c.registry.Unregister(ctx, prefix); uerr != nil {
				log.Warn("Failed to unregister before retry", zap.Error(uerr))
			}
			delay := c.retryDelay(attempt, ra.Delay)
			log.Warn("Upstream rate limited, scheduling retry",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay))
			c.metrics.Retries.Inc()
			if serr := c.sleep(ctx, delay); serr != nil {
				return
			}
			continue
		}

		c.metrics.WorkerFailures.Inc()
		log.Error("Worker failed", zap.Error(err))
		if errors.As(err, &ra) {
			// Retries exhausted. The slot was already freed before the last
			// wait, so only the chain step of cleanup remains; other errors
			// arrive here after failCleanup has chained.
			c.chain(ctx, log)
		}
		return
	}
}

// searchPrefix is one full walk attempt for prefix: check for an existing
// completion, paginate, persist, record, then free the slot and chain one
// replacement. Errors other than upstream 429 run cleanup before returning.
func (c *Crawler) searchPrefix(ctx context.Context, log *zap.Logger, prefix string) error {
	done, err := c.store.CompletionExists(ctx, prefix)
	if err != nil {
		return c.failCleanup(ctx, log, prefix, err)
	}
	if done {
		// Another worker finished this prefix first (duplicate dispatch or
		// stale eviction race). Nothing upstream to do.
		log.Info("Prefix already completed, skipping")
		c.finish(ctx, log, prefix)
		return nil
	}

	offset := 0
	total := 0
	for {
		if err := c.admit(ctx, prefix, offset); err != nil {
			return c.failCleanup(ctx, log, prefix, err)
		}

		artists, err := c.endpoint.SearchArtists(ctx, prefix, offset)
		if err != nil {
			var ra *spotify.RetryAfterError
			if errors.As(err, &ra) {
				// Caller handles the retry schedule.
				return err
			}
			return c.failCleanup(ctx, log, prefix, err)
		}

		n := len(artists)
		log.Debug("Fetched page",
			zap.Int("offset", offset),
			zap.Int("found", n))

		if n > 0 {
			if err := c.store.UpsertArtists(ctx, artists); err != nil {
				return c.failCleanup(ctx, log, prefix, err)
			}
			c.metrics.ArtistsUpserted.Add(float64(n))
		}
		total += n

		if err := c.limiter.UpdateFound(ctx, prefix, offset, n); err != nil {
			// Observability only; the walk continues.
			log.Warn("Failed to update window entry", zap.Error(err))
		}

		if n == 0 || n < spotify.PageLimit {
			break
		}
		next := offset + spotify.PageLimit
		if next > spotify.MaxOffset {
			break
		}
		offset = next
	}

	if err := c.store.RecordCompletion(ctx, prefix, total); err != nil {
		return c.failCleanup(ctx, log, prefix, err)
	}
	c.metrics.Completions.Inc()
	log.Info("Completed prefix", zap.Int("artists_found", total))

	c.finish(ctx, log, prefix)
	return nil
}

// admit blocks until the shared window grants a slot for one request,
// sleeping for the reported ETA plus a small pad between attempts.
func (c *Crawler) admit(ctx context.Context, prefix string, offset int) error {
	for {
		ok, err := c.limiter.TryAdmit(ctx, prefix, offset, spotify.PageLimit)
		if err != nil {
			return err
		}
		if ok {
			c.metrics.RequestsAdmitted.Inc()
			return nil
		}
		c.metrics.RateDenied.Inc()

		eta, err := c.limiter.NextSlotETA(ctx)
		if err != nil {
			return err
		}
		if err := c.sleep(ctx, eta+c.cfg.AdmitEpsilon); err != nil {
			return err
		}
	}
}

// finish frees the slot for prefix and chains exactly one replacement.
func (c *Crawler) finish(ctx context.Context, log *zap.Logger, prefix string) {
	if err := c.registry.Unregister(ctx, prefix); err != nil {
		log.Warn("Failed to unregister", zap.Error(err))
	}
	c.chain(ctx, log)
}

// chain registers and dispatches one new prefix while capacity exists, so a
// completed slot refills immediately instead of waiting for the next tick.
func (c *Crawler) chain(ctx context.Context, log *zap.Logger) {
	count, err := c.registry.Count(ctx)
	if err != nil {
		log.Warn("Chain failed to read registry", zap.Error(err))
		return
	}
	if count >= c.cfg.MaxWorkers {
		return
	}

	batch, err := c.batcher.Batch(ctx, 1)
	if err != nil {
		log.Warn("Chain failed to generate prefix", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}

	next := batch[0]
	ok, err := c.registry.TryRegister(ctx, next)
	if err != nil {
		log.Warn("Chain failed to register prefix",
			zap.String("next", next),
			zap.Error(err))
		return
	}
	if !ok {
		return
	}
	log.Info("Chained replacement prefix", zap.String("next", next))
	c.dispatch(ctx, next)
}

// failCleanup frees the slot with bounded retries, chains one replacement,
// and hands the original error back to the caller.
func (c *Crawler) failCleanup(ctx context.Context, log *zap.Logger, prefix string, cause error) error {
	backoff := time.Second
	for i := 0; i < 5; i++ {
		if err := c.registry.Unregister(ctx, prefix); err == nil {
			break
		} else if i == 4 {
			log.Error("Giving up on unregister", zap.Error(err))
		}
		if serr := c.sleep(ctx, backoff); serr != nil {
			break
		}
		backoff *= 2
	}
	c.chain(ctx, log)
	return cause
}

// retryDelay grows the server-requested delay exponentially per attempt,
// jitters it, and caps it at RetryBackoffMax.
func (c *Crawler) retryDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	d := base << attempt
	if d <= 0 {
		d = c.cfg.RetryBackoffMax
	}
	d = jitter(d)
	if d > c.cfg.RetryBackoffMax {
		d = c.cfg.RetryBackoffMax
	}
	return d
}
