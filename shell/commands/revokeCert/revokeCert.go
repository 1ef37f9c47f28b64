package revokeCert

import (
	"context"
	"encoding/pem"
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const longHelp = `
	revokeCert -order=0 -reason=keyCompromise:
		Revoke the certificate of a valid order with the active account.

	revokeCert -certPEM=cert.pem -keyPEM=key.pem -reason=superseded:
		Revoke a certificate by proving possession of its private key instead
		of using an account.

	Reasons are RFC 5280 names: unspecified, keyCompromise, affiliationChanged,
	superseded, cessationOfOperation, certificateHold, privilegeWithdrawn, ...`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "revokeCert",
			Aliases:  []string{"revokeCertificate", "revoke"},
			Help:     "Revoke a certificate",
			LongHelp: longHelp,
		},
		nil,
		revokeCertHandler)
}

type revokeOptions struct {
	orderIndex int
	certPEM    string
	keyPEM     string
	reason     string
}

func revokeCertHandler(c *ishell.Context, args []string) {
	opts := revokeOptions{}
	revokeFlags := flag.NewFlagSet("revokeCert", flag.ContinueOnError)
	revokeFlags.IntVar(&opts.orderIndex, "order", -1, "index of order to revoke")
	revokeFlags.StringVar(&opts.certPEM, "certPEM", "", "Path to PEM Certificate file to revoke")
	revokeFlags.StringVar(&opts.keyPEM, "keyPEM", "", "Path to the PEM certificate key, to revoke without an account")
	revokeFlags.StringVar(&opts.reason, "reason", "unspecified", "Revocation reason name, see https://tools.ietf.org/html/rfc5280#section-5.3.1")

	if _, err := commands.ParseFlagSetArgs(args, revokeFlags); err != nil {
		return
	}

	if opts.certPEM != "" && opts.orderIndex != -1 {
		c.Printf("revokeCert: -certPEM is mutually exclusive with -order\n")
		return
	}
	if opts.keyPEM != "" && opts.certPEM == "" {
		c.Printf("revokeCert: -keyPEM requires -certPEM\n")
		return
	}

	s := commands.GetSession(c)
	ctx, cancel := s.Context()
	defer cancel()
	if err := revoke(ctx, c, s, opts); err != nil {
		commands.PrintErr(c, "revokeCert", err)
		return
	}
	commands.PrintNotice(c, "Certificate revoked (%s)", opts.reason)
}

func revoke(ctx context.Context, p commands.Picker, s *commands.Session, opts revokeOptions) error {
	reason, ok := acme.ParseRevocationReason(opts.reason)
	if !ok {
		return errors.Errorf("unknown revocation reason %q", opts.reason)
	}

	if opts.certPEM != "" {
		certDER, err := readCertDER(s.Fs(), opts.certPEM)
		if err != nil {
			return err
		}
		if opts.keyPEM != "" {
			keyBytes, err := afero.ReadFile(s.Fs(), opts.keyPEM)
			if err != nil {
				return err
			}
			certKey, err := keys.SignerFromPEM(keyBytes)
			if err != nil {
				return err
			}
			return s.Directory().RevokeWithCertKey(ctx, certDER, certKey, reason)
		}
		acct, err := s.Active()
		if err != nil {
			return err
		}
		return acct.RevokeCertificate(ctx, certDER, reason)
	}

	acct, err := s.Active()
	if err != nil {
		return err
	}
	order, err := commands.FindOrder(p, s, opts.orderIndex)
	if err != nil {
		return err
	}
	if err := order.Refresh(ctx); err != nil {
		return err
	}
	cert, err := order.DownloadCertificate(ctx)
	if err != nil {
		return err
	}
	leaf, err := cert.Leaf()
	if err != nil {
		return err
	}
	return acct.RevokeCertificate(ctx, leaf.Raw, reason)
}

// readCertDER returns the first certificate of a PEM file.
func readCertDER(fs afero.Fs, path string) ([]byte, error) {
	pemBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.Errorf("no PEM certificate in %q", path)
	}
	return block.Bytes, nil
}
