package deactivateAuthz

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "deactivateAuthz",
			Aliases:  []string{"deactivateAuthorization"},
			Help:     "Deactivate an ACME authorization",
			LongHelp: `Deactivate an authorization of an order (see getAuthz for the flags). Orders using it become invalid.`,
		},
		nil,
		deactivateAuthzHandler)
}

func deactivateAuthzHandler(c *ishell.Context, args []string) {
	var orderIndex int
	var identifier string
	deactivateAuthzFlags := flag.NewFlagSet("deactivateAuthz", flag.ContinueOnError)
	deactivateAuthzFlags.IntVar(&orderIndex, "order", -1, "index of existing order")
	deactivateAuthzFlags.StringVar(&identifier, "identifier", "", "identifier of the authorization")
	if _, err := commands.ParseFlagSetArgs(args, deactivateAuthzFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	order, err := commands.FindOrder(c, s, orderIndex)
	if err != nil {
		commands.PrintErr(c, "deactivateAuthz", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	authz, err := commands.FindAuthz(ctx, c, order, identifier)
	if err != nil {
		commands.PrintErr(c, "deactivateAuthz", err)
		return
	}
	if err := authz.Deactivate(ctx); err != nil {
		commands.PrintErr(c, "deactivateAuthz", err)
		return
	}
	commands.PrintNotice(c, "Authorization %q is now %s", authz.URL(), authz.Status())
}
