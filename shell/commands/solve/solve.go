package solve

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	solve -order=0 -identifier=example.com -challengeType=http-01:
		Publish the response to one challenge on the challenge server, ask the
		ACME server to validate it and wait for the result. The response is
		withdrawn afterwards.

	solve -wait=false:
		Publish the response and ask for validation without waiting. The
		response stays published. Check progress with getAuthz.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "solve",
			Aliases:  []string{"solveChallenge"},
			Help:     "Complete an ACME challenge",
			LongHelp: longHelp,
		},
		commands.ChallengeTypeAutocompleter,
		solveHandler)
}

type solveOptions struct {
	printKeyAuthorization bool
	orderIndex            int
	identifier            string
	challType             string
	wait                  bool
}

func solveHandler(c *ishell.Context, args []string) {
	opts := solveOptions{}
	solveFlags := flag.NewFlagSet("solve", flag.ContinueOnError)
	solveFlags.BoolVar(&opts.printKeyAuthorization, "printKeyAuth", false, "Print calculated key authorization")
	solveFlags.StringVar(&opts.challType, "challengeType", "", "Challenge type to solve")
	solveFlags.StringVar(&opts.identifier, "identifier", "", "Authorization identifier to solve for")
	solveFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")
	solveFlags.BoolVar(&opts.wait, "wait", true, "Wait for the validation result")

	if _, err := commands.ParseFlagSetArgs(args, solveFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	solver, err := s.Solver()
	if err != nil {
		commands.PrintErr(c, "solve", err)
		return
	}
	order, err := commands.FindOrder(c, s, opts.orderIndex)
	if err != nil {
		commands.PrintErr(c, "solve", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	authz, err := commands.FindAuthz(ctx, c, order, opts.identifier)
	if err != nil {
		commands.PrintErr(c, "solve", err)
		return
	}
	chall, err := commands.FindChall(c, authz, opts.challType)
	if err != nil {
		commands.PrintErr(c, "solve", err)
		return
	}

	if opts.printKeyAuthorization {
		keyAuth, err := chall.KeyAuthorization()
		if err != nil {
			commands.PrintErr(c, "solve", err)
			return
		}
		c.Printf("key authorization:\n%s\n", keyAuth)
	}

	if err := solver.Present(ctx, chall); err != nil {
		commands.PrintErr(c, "solve", err)
		return
	}
	c.Printf("Challenge response ready\n")

	if !opts.wait {
		if err := chall.Respond(ctx); err != nil {
			commands.PrintErr(c, "solve", err)
			return
		}
		c.Printf("solve: %q challenge for identifier %q (%q) started\n",
			chall.Type(), authz.Identifier().Value, chall.URL())
		return
	}

	err = chall.Validate(ctx, s.Interval())
	if cleanupErr := solver.CleanUp(ctx, chall); cleanupErr != nil {
		commands.PrintErr(c, "solve", cleanupErr)
	}
	if err != nil {
		commands.PrintErr(c, "solve", err)
		return
	}
	commands.PrintOK(c, "%s challenge for %q is valid", chall.Type(), authz.Identifier().Value)
}
