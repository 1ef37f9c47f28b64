package getCert

import (
	"flag"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const longHelp = `
	getCert -order=0:
		Download and print the PEM certificate chain of a valid order, with the
		number of days the leaf certificate is still valid for.

	getCert -order=0 -path=cert.pem -keyPath=key.pem -pem=false:
		Save the chain, and the certificate key if the shell generated it during
		finalize, instead of printing them.

	getCert -order=0 -alternate=0:
		Download the first alternate chain offered by the server.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "getCert",
			Aliases:  []string{"cert", "getCertificate", "certificate"},
			Help:     "Get an order's certificate",
			LongHelp: longHelp,
		},
		nil,
		getCertHandler)
}

type getCertOptions struct {
	printPEM   bool
	pemPath    string
	keyPath    string
	orderIndex int
	alternate  int
}

func getCertHandler(c *ishell.Context, args []string) {
	opts := getCertOptions{}
	getCertFlags := flag.NewFlagSet("getCert", flag.ContinueOnError)
	getCertFlags.BoolVar(&opts.printPEM, "pem", true, "print PEM certificate chain output")
	getCertFlags.StringVar(&opts.pemPath, "path", "", "file path to save PEM certificate chain output to")
	getCertFlags.StringVar(&opts.keyPath, "keyPath", "", "file path to save the PEM certificate key to")
	getCertFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")
	getCertFlags.IntVar(&opts.alternate, "alternate", -1, "index of an alternate chain to download instead")

	if _, err := commands.ParseFlagSetArgs(args, getCertFlags); err != nil {
		return
	}

	if !opts.printPEM && opts.pemPath == "" {
		c.Printf("getCert: one of -pem or -path must be provided\n")
		return
	}

	s := commands.GetSession(c)
	order, err := commands.FindOrder(c, s, opts.orderIndex)
	if err != nil {
		commands.PrintErr(c, "getCert", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	if err := order.Refresh(ctx); err != nil {
		commands.PrintErr(c, "getCert", err)
		return
	}
	cert, err := order.DownloadCertificate(ctx)
	if err != nil {
		commands.PrintErr(c, "getCert", err)
		return
	}
	if opts.alternate >= 0 {
		if opts.alternate >= len(cert.Alternates) {
			commands.PrintErr(c, "getCert", errors.Errorf(
				"alternate index %d out of range, the server offered %d", opts.alternate, len(cert.Alternates)))
			return
		}
		cert, err = order.DownloadAlternate(ctx, cert.Alternates[opts.alternate])
		if err != nil {
			commands.PrintErr(c, "getCert", err)
			return
		}
	}

	if opts.printPEM {
		c.Printf("%s", cert.PEM)
	}
	if days, err := cert.ValidDaysLeft(time.Now()); err == nil {
		c.Printf("Certificate valid for %d more days\n", days)
	}
	for i, alt := range cert.Alternates {
		c.Printf("Alternate chain %d: %q\n", i, alt)
	}

	if opts.pemPath != "" {
		if err := afero.WriteFile(s.Fs(), opts.pemPath, cert.PEM, 0o644); err != nil {
			commands.PrintErr(c, "getCert", err)
			return
		}
		c.Printf("Saved certificate chain to %q\n", opts.pemPath)
	}
	if opts.keyPath != "" {
		keyPEM, err := cert.PrivateKeyPEM()
		if err != nil {
			commands.PrintErr(c, "getCert", err)
			return
		}
		if err := afero.WriteFile(s.Fs(), opts.keyPath, []byte(keyPEM), 0o600); err != nil {
			commands.PrintErr(c, "getCert", err)
			return
		}
		c.Printf("Saved certificate key to %q\n", opts.keyPath)
	}
}
