package saveAccount

import (
	"flag"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	saveAccount account.json:
		Save the active account, including its private key, to account.json. The
		file is only readable by its owner. Load it again with loadAccount.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "saveAccount",
			Aliases:  []string{"save", "saveReg", "saveRegistration"},
			Help:     "Save the active ACME account",
			LongHelp: longHelp,
		},
		nil,
		saveAccountHandler)
}

func saveAccountHandler(c *ishell.Context, args []string) {
	saveAccountFlags := flag.NewFlagSet("saveAccount", flag.ContinueOnError)
	leftovers, err := commands.ParseFlagSetArgs(args, saveAccountFlags)
	if err != nil {
		return
	}
	if len(leftovers) < 1 {
		c.Printf("saveAccount: you must specify a JSON filepath to save to\n")
		return
	}

	s := commands.GetSession(c)
	acct, err := s.Active()
	if err != nil {
		commands.PrintErr(c, "saveAccount", err)
		return
	}

	path := strings.TrimSpace(leftovers[0])
	store := &client.FileAccountStore{Fs: s.Fs(), Path: path}
	if err := store.Save(acct); err != nil {
		commands.PrintErr(c, "saveAccount", err)
		return
	}
	commands.PrintOK(c, "Saved account %q to %q", acct.ID(), path)
}
