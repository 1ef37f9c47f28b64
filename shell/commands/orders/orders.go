package orders

import (
	"flag"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "orders",
			Aliases:  []string{"ordersList", "listOrders"},
			Help:     "Show ACME orders created by the active account",
			LongHelp: `List the active account's orders as index, URL, status and identifiers. Pass -refresh to fetch each order first.`,
		},
		nil,
		ordersHandler)
}

func ordersHandler(c *ishell.Context, args []string) {
	var refresh bool
	ordersFlags := flag.NewFlagSet("orders", flag.ContinueOnError)
	ordersFlags.BoolVar(&refresh, "refresh", false, "Fetch each order before printing it")
	if _, err := commands.ParseFlagSetArgs(args, ordersFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	if _, err := s.Active(); err != nil {
		commands.PrintErr(c, "orders", err)
		return
	}
	orders := s.Orders()
	if len(orders) == 0 {
		c.Printf("No orders\n")
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	for i, order := range orders {
		if refresh {
			if err := order.Refresh(ctx); err != nil {
				commands.PrintErr(c, "orders", err)
				return
			}
		}
		c.Printf("%3d)\t%q\t%s\t%s\n", i, order.URL(), order.Status(), strings.Join(order.Names(), ","))
	}
}
