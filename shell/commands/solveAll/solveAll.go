package solveAll

import (
	"context"
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/solver"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/pkg/errors"
)

const longHelp = `
	solveAll -order=0:
		Solve every pending authorization of an order concurrently, using the
		first challenge type of -preference each authorization offers, and
		report whether the order is ready to be finalized.

	solveAll -order=0 -preference=dns-01 -concurrency=2:
		Solve with dns-01 only, validating at most two authorizations at once.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "solveAll",
			Aliases:  []string{"solveOrder", "solveAuthzs"},
			Help:     "Complete a challenge for every authorization of an order",
			LongHelp: longHelp,
		},
		nil,
		solveAllHandler)
}

type solveAllOptions struct {
	orderIndex  int
	preference  string
	concurrency int
}

func solveAllHandler(c *ishell.Context, args []string) {
	opts := solveAllOptions{}
	solveAllFlags := flag.NewFlagSet("solveAll", flag.ContinueOnError)
	solveAllFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")
	solveAllFlags.StringVar(&opts.preference, "preference", "", "Comma separated challenge types, most preferred first")
	solveAllFlags.IntVar(&opts.concurrency, "concurrency", 0, "Maximum number of authorizations validated at once (0 for no limit)")

	if _, err := commands.ParseFlagSetArgs(args, solveAllFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	order, err := commands.FindOrder(c, s, opts.orderIndex)
	if err != nil {
		commands.PrintErr(c, "solveAll", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	if err := solveAll(ctx, c, s, order, opts); err != nil {
		commands.PrintErr(c, "solveAll", err)
	}
}

func solveAll(ctx context.Context, p commands.Printer, s *commands.Session, order *client.Order, opts solveAllOptions) error {
	slv, err := s.Solver()
	if err != nil {
		return err
	}

	err = solver.SolveOrder(ctx, order, slv, &solver.Options{
		Preference:  commands.SplitList(opts.preference),
		Interval:    s.Interval(),
		Concurrency: opts.concurrency,
		Logger:      s.Logger(),
	})
	if err != nil {
		return err
	}

	_, ready, err := order.ConfirmValidations(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.Errorf("order %q is still %s", order.URL(), order.Status())
	}
	commands.PrintOK(p, "Order %q is ready to be finalized", order.URL())
	return nil
}
