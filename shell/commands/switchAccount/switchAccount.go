package switchAccount

import (
	"flag"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	switchAccount:
		Choose the active account interactively.

	switchAccount -account=1:
		Make the account with index 1 (see "accounts") active.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "switchAccount",
			Aliases:  []string{"switch", "switchAcct"},
			Help:     "Switch the active ACME account",
			LongHelp: longHelp,
		},
		nil,
		switchAccountHandler)
}

func switchAccountHandler(c *ishell.Context, args []string) {
	var index int
	switchFlags := flag.NewFlagSet("switchAccount", flag.ContinueOnError)
	switchFlags.IntVar(&index, "account", -1, "index of the account to switch to")

	if _, err := commands.ParseFlagSetArgs(args, switchFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	accounts := s.Accounts()
	if len(accounts) == 0 {
		c.Printf("switchAccount: no accounts\n")
		return
	}

	if index < 0 {
		accountsList := make([]string, len(accounts))
		for i, acct := range accounts {
			accountsList[i] = fmt.Sprintf("%s %s", acct.ID(), strings.Join(acct.Contacts(), ", "))
		}
		index = c.MultiChoice(accountsList, "Which account would you like to switch to?")
	}

	if err := s.Switch(index); err != nil {
		commands.PrintErr(c, "switchAccount", err)
		return
	}
	commands.PrintOK(c, "Active account is now %s", accounts[index].ID())
}
