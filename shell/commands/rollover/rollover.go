package rollover

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	rollover:
		Generate a new ECDSA P-256 key and switch the active account to it. The
		account URL stays the same.

	rollover -keyType=rsa -json=account.json:
		Roll over to a new RSA key and save the account with its new key to
		account.json.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "rollover",
			Aliases:  []string{"keyRollover", "keyChange", "switchKey"},
			Help:     "Switch active account's key to a new key",
			LongHelp: longHelp,
		},
		nil,
		rolloverHandler)
}

type keyRolloverOptions struct {
	keyType  string
	jsonPath string
}

func rolloverHandler(c *ishell.Context, args []string) {
	opts := keyRolloverOptions{}
	keyRolloverFlags := flag.NewFlagSet("rollover", flag.ContinueOnError)
	keyRolloverFlags.StringVar(&opts.keyType, "keyType", "ecdsa", "Type of key to roll over to (ecdsa, p384, rsa)")
	keyRolloverFlags.StringVar(&opts.jsonPath, "json", "", "Optional filepath to save the account with its new key to")

	if _, err := commands.ParseFlagSetArgs(args, keyRolloverFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	acct, err := s.Active()
	if err != nil {
		commands.PrintErr(c, "rollover", err)
		return
	}

	newKey, err := keys.NewSigner(opts.keyType)
	if err != nil {
		commands.PrintErr(c, "rollover", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	rolled, err := acct.ChangeKey(ctx, newKey)
	if err != nil {
		commands.PrintErr(c, "rollover", err)
		return
	}
	if err := s.ReplaceAccount(ctx, rolled); err != nil {
		commands.PrintErr(c, "rollover", err)
		return
	}

	thumbprint, _ := rolled.Thumbprint()
	commands.PrintOK(c, "Account %q now uses key %s", rolled.ID(), thumbprint)

	if opts.jsonPath != "" {
		store := &client.FileAccountStore{Fs: s.Fs(), Path: opts.jsonPath}
		if err := store.Save(rolled); err != nil {
			commands.PrintErr(c, "rollover", err)
			return
		}
		c.Printf("Saved account data to %q\n", opts.jsonPath)
	}
}
