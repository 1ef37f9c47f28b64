package keyAuth

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/pkg/errors"
)

const longHelp = `
	keyAuth -order=0 -identifier=example.com -type=http-01:
		Print the key authorization of a challenge for the active account and
		where to publish it.

	keyAuth -token=<token>:
		Print the key authorization for an arbitrary token.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "keyAuth",
			Aliases:  []string{"keyAuthorization", "keyAuthz"},
			Help:     "Print the key authorization of a challenge",
			LongHelp: longHelp,
		},
		commands.ChallengeTypeAutocompleter,
		keyAuthHandler)
}

type keyAuthOptions struct {
	orderIndex int
	identifier string
	challType  string
	token      string
}

func keyAuthHandler(c *ishell.Context, args []string) {
	var opts keyAuthOptions
	keyAuthFlags := flag.NewFlagSet("keyAuth", flag.ContinueOnError)
	keyAuthFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")
	keyAuthFlags.StringVar(&opts.identifier, "identifier", "", "identifier of authorization")
	keyAuthFlags.StringVar(&opts.challType, "type", "", "challenge type to get")
	keyAuthFlags.StringVar(&opts.token, "token", "", "challenge token")

	if _, err := commands.ParseFlagSetArgs(args, keyAuthFlags); err != nil {
		return
	}

	if opts.token != "" && (opts.orderIndex != -1 || opts.identifier != "" || opts.challType != "") {
		c.Printf("keyAuth: -token can not be used with -order -identifier or -type\n")
		return
	}

	s := commands.GetSession(c)
	acct, err := s.Active()
	if err != nil {
		commands.PrintErr(c, "keyAuth", err)
		return
	}

	if opts.token != "" {
		keyAuth, err := acct.KeyAuthorization(opts.token)
		if err != nil {
			commands.PrintErr(c, "keyAuth", err)
			return
		}
		c.Printf("%s\n", keyAuth)
		return
	}

	order, err := commands.FindOrder(c, s, opts.orderIndex)
	if err != nil {
		commands.PrintErr(c, "keyAuth", err)
		return
	}
	ctx, cancel := s.Context()
	defer cancel()
	authz, err := commands.FindAuthz(ctx, c, order, opts.identifier)
	if err != nil {
		commands.PrintErr(c, "keyAuth", err)
		return
	}
	chall, err := commands.FindChall(c, authz, opts.challType)
	if err != nil {
		commands.PrintErr(c, "keyAuth", err)
		return
	}
	if err := describe(c, chall); err != nil {
		commands.PrintErr(c, "keyAuth", err)
	}
}

// describe prints a challenge's key authorization and the response that proves
// it.
func describe(p commands.Printer, chall client.Challenge) error {
	keyAuth, err := chall.KeyAuthorization()
	if err != nil {
		return err
	}
	p.Printf("token:             %s\n", chall.Token())
	p.Printf("key authorization: %s\n", keyAuth)

	switch c := chall.(type) {
	case *client.HTTP01Challenge:
		p.Printf("serve at:          http://%s%s\n", c.Authorization().Domain(), c.Path())
	case *client.DNS01Challenge:
		value, err := c.Proof()
		if err != nil {
			return err
		}
		p.Printf("TXT record:        %s %q\n", c.RecordName(), value)
	case *client.TLSALPN01Challenge:
		if _, err := c.Certificate(); err != nil {
			return err
		}
		p.Printf("acme-tls/1 certificate for %s\n", c.Authorization().Domain())
	default:
		return errors.Errorf("challenge %q has unknown type %q", chall.URL(), chall.Type())
	}
	return nil
}
