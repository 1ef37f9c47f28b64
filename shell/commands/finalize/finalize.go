package finalize

import (
	"context"
	"encoding/base64"
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/pkg/errors"
)

const longHelp = `
	finalize -order=0:
		Check that every authorization of the order is valid, generate a new
		ECDSA P-256 certificate key and a CSR for the order's identifiers, and
		finalize the order. Waits until the certificate is issued.

	finalize -order=0 -keyType=rsa:
		Finalize with an RSA certificate key.

	finalize -order=0 -csr=<base64url DER>:
		Finalize with a CSR built elsewhere.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "finalize",
			Aliases:  []string{"finalizeOrder"},
			Help:     "Finalize an ACME order with a CSR",
			LongHelp: longHelp,
		},
		nil,
		finalizeHandler)
}

type finalizeOptions struct {
	csr        string
	keyType    string
	orderIndex int
}

func finalizeHandler(c *ishell.Context, args []string) {
	opts := finalizeOptions{}
	finalizeFlags := flag.NewFlagSet("finalize", flag.ContinueOnError)
	finalizeFlags.StringVar(&opts.csr, "csr", "", "base64url encoded CSR")
	finalizeFlags.StringVar(&opts.keyType, "keyType", "ecdsa", "Type of certificate key to generate a CSR with (ecdsa, p384, rsa)")
	finalizeFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")

	if _, err := commands.ParseFlagSetArgs(args, finalizeFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	order, err := commands.FindOrder(c, s, opts.orderIndex)
	if err != nil {
		commands.PrintErr(c, "finalize", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	valid, err := finalize(ctx, s, order, opts)
	if err != nil {
		commands.PrintErr(c, "finalize", err)
		return
	}
	commands.PrintOK(c, "Order %q is valid. Certificate URL %q", valid.URL(), valid.Resource().Certificate)
}

func finalize(ctx context.Context, s *commands.Session, order *client.Order, opts finalizeOptions) (*client.ValidOrder, error) {
	ready, ok, err := order.ConfirmValidations(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("order %q is %s: solve its authorizations first", order.URL(), order.Status())
	}

	if opts.csr != "" {
		csrDER, err := base64.RawURLEncoding.DecodeString(opts.csr)
		if err != nil {
			return nil, errors.Wrap(err, "decoding -csr")
		}
		return ready.Finalize(ctx, csrDER, s.Interval())
	}

	certKey, err := keys.NewSigner(opts.keyType)
	if err != nil {
		return nil, err
	}
	return ready.FinalizeSigner(ctx, certKey, s.Interval())
}
