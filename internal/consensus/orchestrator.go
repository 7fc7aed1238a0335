package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/airqa/inspect-cli/internal/failover"
	"github.com/airqa/inspect-cli/internal/health"
	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/points"
	"github.com/airqa/inspect-cli/internal/provider"
	"github.com/airqa/inspect-cli/internal/resilience"
)

const (
	// MinAttempts and MaxAttempts bound the per-image attempt count.
	MinAttempts = 2
	MaxAttempts = 5

	// defaultAttemptDelay paces attempts to stay under provider rate limits.
	defaultAttemptDelay = time.Second

	// defaultPromptPoints is how many learned names the prompt suggests.
	defaultPromptPoints = 20
)

// ConsensusError aggregates the per-attempt failures of a batch in which no
// attempt succeeded.
type ConsensusError struct {
	Attempts int
	Errs     []error
}

func (e *ConsensusError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = fmt.Sprintf("attempt %d: %v", i+1, err)
	}
	return fmt.Sprintf("consensus: all %d attempts failed: %s", e.Attempts, strings.Join(msgs, "; "))
}

// Options tunes a batch run.
type Options struct {
	// Attempts is the requested attempt count, clamped to [MinAttempts,
	// MaxAttempts].
	Attempts int
	// AttemptDelay is the pacing interval between attempts.
	AttemptDelay time.Duration
	// PromptPoints caps the learned names suggested in the prompt.
	PromptPoints int
	// Threshold overrides the check-type inference threshold.
	Threshold float64
	// User scopes config resolution.
	User string
}

func (o Options) withDefaults() Options {
	if o.Attempts < MinAttempts {
		o.Attempts = MinAttempts
	}
	if o.Attempts > MaxAttempts {
		o.Attempts = MaxAttempts
	}
	if o.AttemptDelay <= 0 {
		o.AttemptDelay = defaultAttemptDelay
	}
	if o.PromptPoints <= 0 {
		o.PromptPoints = defaultPromptPoints
	}
	return o
}

// Orchestrator runs multi-attempt recognition batches.
type Orchestrator struct {
	factory  *provider.Factory
	failover *failover.Coordinator
	monitor  *health.Monitor
	points   *points.Service
	log      *zap.Logger

	nowFunc func() time.Time
}

func NewOrchestrator(factory *provider.Factory, fo *failover.Coordinator, monitor *health.Monitor, pts *points.Service, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		factory:  factory,
		failover: fo,
		monitor:  monitor,
		points:   pts,
		log:      log,
		nowFunc:  time.Now,
	}
}

// Run performs one multi-attempt batch over an image and merges the results.
// Attempts run sequentially with pacing. Partial failure is tolerated; only
// a batch with zero successes returns a ConsensusError. Provider failures
// trigger failover between attempts, configuration errors abort immediately.
func (o *Orchestrator) Run(ctx context.Context, image []byte, mimeType string, opts Options) (*model.ConsensusResult, error) {
	opts = opts.withDefaults()

	prompt, err := o.buildPrompt(ctx, opts.PromptPoints)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Every(opts.AttemptDelay), 1)

	var (
		attempts []*model.OCRAttempt
		failures []error
	)
	for i := 0; i < opts.Attempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attempt, err := o.runAttempt(ctx, image, mimeType, prompt, opts.User, i+1)
		if err != nil {
			if resilience.IsConfiguration(err) {
				return nil, err
			}
			o.log.Warn("recognition attempt failed",
				zap.Int("attempt", i+1),
				zap.Error(err))
			failures = append(failures, err)

			if resilience.IsProviderRejection(err) || resilience.IsTransient(err) {
				o.tryFailover(ctx, opts.User, err)
			}
			continue
		}
		attempts = append(attempts, attempt)
	}

	if len(attempts) == 0 {
		return nil, &ConsensusError{Attempts: opts.Attempts, Errs: failures}
	}

	result := Merge(attempts)
	o.inferCheckType(result, opts.Threshold)

	// Feed the merged points back into learning unless the caller is gone.
	if ctx.Err() == nil && len(result.Points) > 0 {
		o.points.Update(ctx, result.Points, result.CheckType)
	}

	o.log.Info("consensus batch complete",
		zap.Int("attempts_requested", opts.Attempts),
		zap.Int("attempts_succeeded", len(attempts)),
		zap.Bool("has_conflicts", result.HasConflicts),
		zap.Int("points", len(result.Points)))
	return result, nil
}

func (o *Orchestrator) runAttempt(ctx context.Context, image []byte, mimeType, prompt, user string, n int) (*model.OCRAttempt, error) {
	client, err := o.factory.GetClient(ctx, user)
	if err != nil {
		return nil, err
	}

	start := o.nowFunc()
	resp, err := client.Generate(ctx, provider.Request{
		Prompt:    prompt,
		ImageData: image,
		ImageMIME: mimeType,
	})
	o.monitor.Record(ctx, client.Config(), model.CallOCR, user, o.nowFunc().Sub(start), err)
	if err != nil {
		return nil, err
	}

	attempt, fromJSON := Parse(resp.Text, o.nowFunc())
	if fromJSON {
		attempt.Confidence = resp.Confidence
	} else {
		attempt.Confidence = textExtractConfidence
	}
	attempt.Attempt = n
	return attempt, nil
}

// tryFailover attempts a provider switch after a failed attempt. A switch
// drops the scope's cached client; an exhausted cascade just leaves the
// current config in place for the next attempt.
func (o *Orchestrator) tryFailover(ctx context.Context, user string, cause error) {
	client, err := o.factory.GetClient(ctx, user)
	if err != nil {
		return
	}
	next, err := o.failover.HandleFailure(ctx, client.Config(), user, cause)
	if err != nil {
		o.log.Warn("failover unavailable", zap.Error(err))
		return
	}
	o.factory.Invalidate(user)
	o.log.Info("failover switched provider for next attempt",
		zap.String("to", next.Name))
}

func (o *Orchestrator) buildPrompt(ctx context.Context, limit int) (string, error) {
	suggestions, err := o.points.Suggest(ctx, nil, limit)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		names = append(names, s.Name)
	}
	return BuildPrompt(names), nil
}

// inferCheckType overlays point-based inference on the merged result. The
// inferred type wins over the OCR reading; the original reading is kept for
// review when they disagree.
func (o *Orchestrator) inferCheckType(result *model.ConsensusResult, threshold float64) {
	if len(result.Points) == 0 {
		return
	}
	inferred, confidence, stats := points.InferCheckType(result.Points, threshold)
	result.InferredCheckType = inferred
	result.CheckTypeConfidence = confidence

	if result.CheckType != "" && result.CheckType != inferred {
		result.CheckTypeConflict = true
		result.OCRCheckType = result.CheckType
		o.log.Warn("check type conflict",
			zap.String("ocr", string(result.CheckType)),
			zap.String("inferred", string(inferred)),
			zap.Int("high", stats.HighCount),
			zap.Int("low", stats.LowCount))
	}
	result.CheckType = inferred
}
