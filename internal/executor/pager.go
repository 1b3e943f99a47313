package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/filter"
)

// ErrRetriesExhausted wraps the last transient error once the retry budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Pager walks every result page of one predicate. It issues the initial
// search, then follows continuation cursors until the catalog reports no
// further page, after which Next returns io.EOF. A Pager is not restartable.
type Pager struct {
	client catalog.Client
	pred   *filter.Predicate
	policy RetryPolicy
	sleep  sleepFunc
	logger *slog.Logger

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(err error, attempt int)

	started  bool
	done     bool
	cursor   string
	attempts int
}

// NewPager creates a pager for pred.
func NewPager(client catalog.Client, pred *filter.Predicate, policy RetryPolicy) *Pager {
	return &Pager{
		client: client,
		pred:   pred,
		policy: policy,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the pager.
func (p *Pager) WithLogger(logger *slog.Logger) *Pager {
	p.logger = logger
	return p
}

// Attempts is the number of network requests issued so far.
func (p *Pager) Attempts() int {
	return p.attempts
}

// Next returns the next page, or io.EOF after the last one.
func (p *Pager) Next(ctx context.Context) (*catalog.Page, error) {
	if p.done {
		return nil, io.EOF
	}

	page, err := p.fetch(ctx)
	if err != nil {
		p.done = true
		return nil, err
	}
	p.started = true

	switch {
	case page.Next == "":
		p.done = true
	case page.Next == p.cursor:
		p.logger.WarnContext(ctx, "catalog returned the same cursor twice; stopping",
			slog.String("backend", p.client.Name()),
		)
		p.done = true
	default:
		p.cursor = page.Next
	}
	return page, nil
}

func (p *Pager) fetch(ctx context.Context) (*catalog.Page, error) {
	req := &request{}
	b := p.policy.backOff()

	for {
		if err := req.to(StateInFlight); err != nil {
			return nil, err
		}
		p.attempts++

		page, err := p.call(ctx)
		if err == nil {
			return page, req.to(StateSucceeded)
		}

		if ctx.Err() != nil || !catalog.IsTransient(err) {
			_ = req.to(StateFailed)
			return nil, err
		}
		if req.retries() >= p.policy.MaxRetries {
			_ = req.to(StateFailed)
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, req.attempts, err)
		}

		if err := req.to(StateRetryWait); err != nil {
			return nil, err
		}
		delay := b.NextBackOff()
		p.logger.DebugContext(ctx, "retrying catalog request",
			slog.String("backend", p.client.Name()),
			slog.Int("attempt", req.attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if p.OnRetry != nil {
			p.OnRetry(err, req.attempts)
		}
		if err := p.sleep(ctx, delay); err != nil {
			_ = req.to(StateFailed)
			return nil, err
		}
	}
}

func (p *Pager) call(ctx context.Context) (*catalog.Page, error) {
	var (
		page *catalog.Page
		err  error
	)
	if !p.started {
		page, err = p.client.Search(ctx, p.pred)
	} else {
		page, err = p.client.FetchNext(ctx, p.cursor)
	}
	if err == nil && page == nil {
		page = &catalog.Page{}
	}
	return page, err
}
