package loadAccount

import (
	"flag"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	loadAccount account.json:
		Load the account saved in account.json (see saveAccount) with the ACME
		server and make it the active account. The server is asked for the
		account bound to the saved key, so the saved account URL is only
		informational.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "loadAccount",
			Aliases:  []string{"loadAcct", "loadReg", "loadRegistration"},
			Help:     "Load an existing ACME account from JSON",
			LongHelp: longHelp,
		},
		nil,
		loadAccountHandler)
}

func loadAccountHandler(c *ishell.Context, args []string) {
	loadAccountFlags := flag.NewFlagSet("loadAccount", flag.ContinueOnError)
	leftovers, err := commands.ParseFlagSetArgs(args, loadAccountFlags)
	if err != nil {
		return
	}
	if len(leftovers) < 1 {
		c.Printf("loadAccount: you must specify a JSON filepath to load from\n")
		return
	}

	argument := strings.TrimSpace(leftovers[0])
	s := commands.GetSession(c)

	ctx, cancel := s.Context()
	defer cancel()
	acct, err := s.Directory().Restore(ctx, &client.FileAccountStore{Fs: s.Fs(), Path: argument})
	if err != nil {
		c.Printf("loadAccount: error restoring account from %q : %s\n", argument, err)
		return
	}

	index := s.AddAccount(acct)
	commands.PrintOK(c, "Restored account %d with ID %q (Contact %s)", index, acct.ID(), acct.Contacts())
}
