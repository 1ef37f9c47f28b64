package newAccount

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	newAccount:
		Create a new ACME account with a freshly generated ECDSA P-256 key and no
		contacts. The account becomes the active account.

	newAccount -contacts=admin@example.com,ops@example.com -keyType=rsa:
		Create an account with an RSA key and two email contacts.

	newAccount -eabKeyID=kid-1 -eabKey=<base64url MAC key>:
		Create an account bound to an external account, as some CAs require.

	newAccount -json=account.json:
		Create an account and save it (key included) to account.json.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "newAccount",
			Aliases:  []string{"newAcct", "newReg", "newRegistration"},
			Help:     "Create a new ACME account",
			LongHelp: longHelp,
		},
		nil,
		newAccountHandler)
}

type newAccountOptions struct {
	contacts string
	keyType  string
	jsonPath string
	skipTOS  bool
	eabKeyID string
	eabKey   string
	existing bool
}

func newAccountHandler(c *ishell.Context, args []string) {
	opts := newAccountOptions{}
	newAccountFlags := flag.NewFlagSet("newAccount", flag.ContinueOnError)
	newAccountFlags.StringVar(&opts.contacts, "contacts", "", "Comma separated list of contact emails")
	newAccountFlags.StringVar(&opts.keyType, "keyType", "ecdsa", "Type of account key to generate (ecdsa, p384, rsa)")
	newAccountFlags.StringVar(&opts.jsonPath, "json", "", "Optional filepath to a JSON save file for the account")
	newAccountFlags.BoolVar(&opts.skipTOS, "skipTOS", false, "Do not agree to the CA's terms of service")
	newAccountFlags.StringVar(&opts.eabKeyID, "eabKeyID", "", "External account binding key ID")
	newAccountFlags.StringVar(&opts.eabKey, "eabKey", "", "External account binding MAC key (base64url)")
	newAccountFlags.BoolVar(&opts.existing, "onlyReturnExisting", false, "Only look up an existing account for the key")

	if _, err := commands.ParseFlagSetArgs(args, newAccountFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	acct, err := createAccount(s, opts)
	if err != nil {
		commands.PrintErr(c, "newAccount", err)
		return
	}
	index := s.AddAccount(acct)
	commands.PrintOK(c, "Created account %d with ID %q Contacts %q", index, acct.ID(), acct.Contacts())
	if tos := s.Directory().TermsOfService(); tos != "" && !opts.skipTOS {
		c.Printf("Agreed to terms of service %q\n", tos)
	}

	if opts.jsonPath != "" {
		store := &client.FileAccountStore{Fs: s.Fs(), Path: opts.jsonPath}
		if err := store.Save(acct); err != nil {
			commands.PrintErr(c, "newAccount", err)
			return
		}
		c.Printf("Saved account data to %q\n", opts.jsonPath)
	}
}

func createAccount(s *commands.Session, opts newAccountOptions) (*client.Account, error) {
	signer, err := keys.NewSigner(opts.keyType)
	if err != nil {
		return nil, err
	}

	regOpts := &client.RegisterOptions{
		SkipTermsOfServiceAgreement: opts.skipTOS,
		OnlyReturnExisting:          opts.existing,
	}
	if opts.eabKeyID != "" || opts.eabKey != "" {
		eab, err := client.NewExternalAccountBinding(opts.eabKeyID, opts.eabKey)
		if err != nil {
			return nil, err
		}
		regOpts.ExternalAccountBinding = eab
	}

	ctx, cancel := s.Context()
	defer cancel()
	return s.Directory().Register(ctx, signer, commands.SplitList(opts.contacts), regOpts)
}
