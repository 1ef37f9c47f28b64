// Package solver publishes challenge responses so an ACME server can validate
// them, and drives every authorization of an order through validation.
package solver

import (
	"context"
	"log/slog"
	"time"

	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/internal/logging"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupported is returned by a Solver asked to publish a challenge type it
// cannot serve.
var ErrUnsupported = errors.New("challenge type not supported by solver")

// Solver publishes and withdraws the response to a challenge.
type Solver interface {
	Present(ctx context.Context, chall client.Challenge) error
	CleanUp(ctx context.Context, chall client.Challenge) error
}

// DefaultPreference is the challenge type order used when none is given.
var DefaultPreference = []string{"http-01", "tls-alpn-01", "dns-01"}

// Options adjusts SolveOrder.
type Options struct {
	// Challenge types to try, most preferred first. Defaults to
	// DefaultPreference.
	Preference []string
	// Interval between challenge polls.
	Interval time.Duration
	// Maximum number of authorizations validated at once. Zero means no limit.
	Concurrency int
	Logger      *slog.Logger
}

// SolveOrder validates every pending authorization of order with s,
// concurrently. For each authorization the first preferred challenge type
// that is offered and that s supports is used. Responses are withdrawn once
// validation finishes. The first failure cancels the remaining validations.
func SolveOrder(ctx context.Context, order *client.Order, s Solver, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	prefs := opts.Preference
	if len(prefs) == 0 {
		prefs = DefaultPreference
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	authzs, err := order.Authorizations(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for _, authz := range authzs {
		if !authz.NeedChallenge() {
			logger.Debug("authorization needs no challenge", "url", authz.URL(), "status", authz.Status())
			continue
		}
		authz := authz
		g.Go(func() error {
			return solveAuthorization(ctx, authz, s, prefs, opts.Interval, logger)
		})
	}
	return g.Wait()
}

func solveAuthorization(ctx context.Context, authz *client.Authorization, s Solver, prefs []string, interval time.Duration, logger *slog.Logger) error {
	for _, challType := range prefs {
		chall := authz.Challenge(challType)
		if chall == nil {
			continue
		}
		err := s.Present(ctx, chall)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "presenting %s for %s", challType, authz.Identifier().Value)
		}
		logger.Info("presented challenge response",
			"identifier", authz.Identifier().Value, "type", challType, "url", chall.URL())

		err = chall.Validate(ctx, interval)
		if cleanupErr := s.CleanUp(context.WithoutCancel(ctx), chall); cleanupErr != nil {
			logging.Error(logger, "cleaning up challenge response", cleanupErr, "url", chall.URL())
		}
		return err
	}
	return errors.Errorf("no supported challenge offered for %s (tried %v)",
		authz.Identifier().Value, prefs)
}
