package recovery

import (
	"context"
	"time"

	"github.com/tcooper/warden/internal/job"
)

var (
	apiCooldown  = 60 * time.Second
	networkDelay = 30 * time.Second
)

const timeoutMultiplier = 1.5

// Strategy adjusts a job's parameters so the failed stage can be retried.
// Apply blocks only for cooldown strategies and honors ctx cancellation.
type Strategy struct {
	Applicable  bool
	Description string
	Apply       func(ctx context.Context, j *job.Job) error
}

// StrategyFor maps a classification to its recovery strategy. Types with
// no viable adaptation return Applicable=false; the caller finalizes the
// job as failed.
func StrategyFor(class Classification) Strategy {
	switch class.Type {
	case ConfigurationError:
		return Strategy{
			Applicable:  class.Recoverable,
			Description: "switch to fallback configuration",
			Apply: func(ctx context.Context, j *job.Job) error {
				j.Params.FallbackConfig = true
				return nil
			},
		}
	case APILimit:
		return Strategy{
			Applicable:  true,
			Description: "wait out the rate limit and retry with reduced scope",
			Apply: func(ctx context.Context, j *job.Job) error {
				if err := wait(ctx, apiCooldown); err != nil {
					return err
				}
				j.Params.ReducedScope = true
				return nil
			},
		}
	case Timeout:
		return Strategy{
			Applicable:  true,
			Description: "increase timeout and simplify the run",
			Apply: func(ctx context.Context, j *job.Job) error {
				j.Params.Timeout = time.Duration(float64(j.Params.Timeout) * timeoutMultiplier)
				j.Params.Simplified = true
				return nil
			},
		}
	case NetworkError:
		return Strategy{
			Applicable:  true,
			Description: "brief delay, then retry as-is",
			Apply: func(ctx context.Context, j *job.Job) error {
				return wait(ctx, networkDelay)
			},
		}
	case ResourceLimit:
		if class.Recoverable {
			// Quota and slot contention clear on their own; a short wait
			// before retry is the whole strategy.
			return Strategy{
				Applicable:  true,
				Description: "wait for resources to free up and retry",
				Apply: func(ctx context.Context, j *job.Job) error {
					return wait(ctx, networkDelay)
				},
			}
		}
		return Strategy{Description: "hard resource ceiling exceeded; not retryable"}
	default:
		return Strategy{Description: "no strategy for unknown errors"}
	}
}

// wait sleeps for d unless ctx is cancelled first.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
