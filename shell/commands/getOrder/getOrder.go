package getOrder

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	getOrder:
		Fetch an order of the active account (chosen interactively when there
		are several) and print it as JSON.

	getOrder -order=2:
		Fetch and print the order with index 2 (see "orders").`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "getOrder",
			Aliases:  []string{"getOrd"},
			Help:     "Get an ACME order",
			LongHelp: longHelp,
		},
		nil,
		getOrderHandler)
}

func getOrderHandler(c *ishell.Context, args []string) {
	var orderIndex int
	getOrderFlags := flag.NewFlagSet("getOrder", flag.ContinueOnError)
	getOrderFlags.IntVar(&orderIndex, "order", -1, "index of existing order")
	if _, err := commands.ParseFlagSetArgs(args, getOrderFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	order, err := commands.FindOrder(c, s, orderIndex)
	if err != nil {
		commands.PrintErr(c, "getOrder", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	if err := order.Refresh(ctx); err != nil {
		commands.PrintErr(c, "getOrder", err)
		return
	}

	orderStr, err := commands.PrintJSON(order.Resource())
	if err != nil {
		commands.PrintErr(c, "getOrder", err)
		return
	}
	c.Printf("%s\n", orderStr)
	if retry := order.RetryAfter(); retry > 0 {
		commands.PrintNotice(c, "Server asked to retry after %s", retry)
	}
}
