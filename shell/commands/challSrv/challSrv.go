package challSrv

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/solver"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

const (
	longHelp = `
	challSrv -challengeType=http-01 -token=<token> -value=<key authorization>:
		Serve value for the HTTP-01 challenge token.

	challSrv -challengeType=dns-01 -host=example.com -value=<TXT value>:
		Serve a TXT record for _acme-challenge.example.com.

	challSrv -challengeType=tls-alpn-01 -host=example.com -value=<key authorization>:
		Serve an acme-tls/1 certificate for example.com.

	challSrv -operation=delete -challengeType=dns-01 -host=example.com:
		Remove a previously added response.`
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "challSrv",
			Aliases:  []string{"chalSrv", "challengeServer"},
			Help:     "Add/remove challenge responses from the challenge response server",
			LongHelp: longHelp,
		},
		commands.ChallengeTypeAutocompleter,
		challSrvHandler)
}

type challSrvOptions struct {
	challengeType string
	token         string
	host          string
	value         string
	operation     string
}

func challSrvHandler(c *ishell.Context, args []string) {
	var opts challSrvOptions
	challSrvFlags := flag.NewFlagSet("challSrv", flag.ContinueOnError)
	challSrvFlags.StringVar(&opts.challengeType, "challengeType", "", "Challenge type to add/remove")
	challSrvFlags.StringVar(&opts.token, "token", "", "Challenge token (HTTP-01 only)")
	challSrvFlags.StringVar(&opts.host, "host", "", "Challenge response host (DNS-01/TLS-ALPN-01 only)")
	challSrvFlags.StringVar(&opts.value, "value", "", "Challenge response value")
	challSrvFlags.StringVar(&opts.operation, "operation", "add", "'add' to add a challenge, 'delete' to remove")

	if _, err := commands.ParseFlagSetArgs(args, challSrvFlags); err != nil {
		return
	}

	challSrv, err := commands.GetSession(c).ChallSrv()
	if err != nil {
		commands.PrintErr(c, "challSrv", err)
		return
	}
	if err := apply(c, challSrv, opts); err != nil {
		commands.PrintErr(c, "challSrv", err)
	}
}

func apply(p commands.Printer, challSrv solver.ChallengeServer, opts challSrvOptions) error {
	if opts.operation != "add" && opts.operation != "delete" {
		return errors.New(`-operation must be "add" or "delete"`)
	}
	if opts.challengeType == "http-01" && opts.host != "" {
		return errors.New("-challengeType http-01 does not use a -host argument")
	}
	if opts.challengeType != "http-01" && opts.token != "" {
		return errors.New("only -challengeType http-01 uses a -token argument")
	}
	if opts.operation == "add" && opts.value == "" {
		return errors.New("-value is required to add a challenge response")
	}

	type challengeAdder func(string, string)
	type challengeRemover func(string)

	type challengeType struct {
		adder   challengeAdder
		remover challengeRemover
	}

	challengeHandlers := map[string]challengeType{
		"http-01": {
			adder:   challSrv.AddHTTPOneChallenge,
			remover: challSrv.DeleteHTTPOneChallenge,
		},
		"dns-01": {
			adder:   challSrv.AddDNSOneChallenge,
			remover: challSrv.DeleteDNSOneChallenge,
		},
		"tls-alpn-01": {
			adder:   challSrv.AddTLSALPNChallenge,
			remover: challSrv.DeleteTLSALPNChallenge,
		},
	}

	handler, ok := challengeHandlers[opts.challengeType]
	if !ok {
		return errors.New("-challengeType must be one of http-01, dns-01 or tls-alpn-01")
	}

	host := opts.host
	switch opts.challengeType {
	case "http-01":
		host = opts.token
	case "dns-01":
		host = dns.Fqdn("_acme-challenge." + host)
	}
	if host == "" {
		return errors.New("a -token or -host argument is required")
	}

	if opts.operation == "add" {
		p.Printf("Adding %s challenge response for host %q\n", opts.challengeType, host)
		handler.adder(host, opts.value)
	} else {
		p.Printf("Removing %s challenge response for host %q\n", opts.challengeType, host)
		handler.remover(host)
	}
	return nil
}
