package getAuthz

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	getAuthz:
		Pick an order and one of its authorizations interactively, fetch the
		authorization and print it as JSON.

	getAuthz -order=0 -identifier=*.example.com:
		Print the authorization for the wildcard identifier of order 0.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "getAuthz",
			Aliases:  []string{"authz", "getAuthorization", "authorization"},
			Help:     "Get an ACME authorization",
			LongHelp: longHelp,
		},
		nil,
		getAuthzHandler)
}

func getAuthzHandler(c *ishell.Context, args []string) {
	var orderIndex int
	var identifier string
	getAuthzFlags := flag.NewFlagSet("getAuthz", flag.ContinueOnError)
	getAuthzFlags.IntVar(&orderIndex, "order", -1, "index of existing order")
	getAuthzFlags.StringVar(&identifier, "identifier", "", "identifier of the authorization")
	if _, err := commands.ParseFlagSetArgs(args, getAuthzFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	order, err := commands.FindOrder(c, s, orderIndex)
	if err != nil {
		commands.PrintErr(c, "getAuthz", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	authz, err := commands.FindAuthz(ctx, c, order, identifier)
	if err != nil {
		commands.PrintErr(c, "getAuthz", err)
		return
	}

	authzStr, err := commands.PrintJSON(authz.Resource())
	if err != nil {
		commands.PrintErr(c, "getAuthz", err)
		return
	}
	c.Printf("%s\n", authzStr)
}
