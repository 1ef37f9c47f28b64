package newOrder

import (
	"flag"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/pkg/errors"
)

const longHelp = `
	newOrder -identifiers=example.com,*.example.com:
		Create an order for the given DNS names (wildcards allowed) or IP
		addresses with the active account.

	newOrder:
		Prompt for identifiers, one per line.

	newOrder -identifiers=example.com -notAfter=2160h:
		Request a certificate valid for at most 90 days.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "newOrder",
			Aliases:  []string{"order", "newOrd"},
			Help:     "Create a new ACME order",
			LongHelp: longHelp,
		},
		nil,
		newOrderHandler)
}

type newOrderOptions struct {
	identifiers string
	notAfter    time.Duration
}

func newOrderHandler(c *ishell.Context, args []string) {
	opts := newOrderOptions{}
	newOrderFlags := flag.NewFlagSet("newOrder", flag.ContinueOnError)
	newOrderFlags.StringVar(&opts.identifiers, "identifiers", "", "Comma separated list of DNS names or IP addresses")
	newOrderFlags.DurationVar(&opts.notAfter, "notAfter", 0, "Optional requested certificate lifetime from now")

	if _, err := commands.ParseFlagSetArgs(args, newOrderFlags); err != nil {
		return
	}

	names := commands.SplitList(opts.identifiers)
	if len(names) == 0 {
		names = commands.ReadLines(c, "FQDN",
			"Input fully qualified domain name or IP address identifiers for your order")
	}
	if len(names) == 0 {
		c.Printf("No identifiers provided.\n")
		return
	}

	s := commands.GetSession(c)
	index, order, err := createOrder(s, names, opts.notAfter)
	if err != nil {
		commands.PrintErr(c, "newOrder", err)
		return
	}
	commands.PrintOK(c, "Created order %d %q with status %q", index, order.URL(), order.Status())
}

func createOrder(s *commands.Session, names []string, notAfter time.Duration) (int, *client.Order, error) {
	acct, err := s.Active()
	if err != nil {
		return -1, nil, err
	}
	if notAfter < 0 {
		return -1, nil, errors.New("-notAfter must not be negative")
	}

	var orderOpts *client.OrderOptions
	if notAfter > 0 {
		orderOpts = &client.OrderOptions{NotAfter: time.Now().Add(notAfter)}
	}

	ctx, cancel := s.Context()
	defer cancel()
	order, err := acct.NewOrder(ctx, names, orderOpts)
	if err != nil {
		return -1, nil, err
	}
	index, err := s.AddOrder(order)
	return index, order, err
}
