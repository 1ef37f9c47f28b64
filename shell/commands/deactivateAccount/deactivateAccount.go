package deactivateAccount

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

const longHelp = `
	deactivateAccount:
		Ask for confirmation, then deactivate the active account. A deactivated
		account can not be used again.

	deactivateAccount -force:
		Deactivate the active account without asking.`

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "deactivateAccount",
			Aliases:  []string{"deactivateAcct", "deactivateReg", "deactivateRegistration"},
			Help:     "Deactivate the active ACME account",
			LongHelp: longHelp,
		},
		nil,
		deactivateAccountHandler)
}

func deactivateAccountHandler(c *ishell.Context, args []string) {
	var force bool
	deactivateFlags := flag.NewFlagSet("deactivateAccount", flag.ContinueOnError)
	deactivateFlags.BoolVar(&force, "force", false, "Do not ask for confirmation")
	if _, err := commands.ParseFlagSetArgs(args, deactivateFlags); err != nil {
		return
	}

	s := commands.GetSession(c)
	acct, err := s.Active()
	if err != nil {
		commands.PrintErr(c, "deactivateAccount", err)
		return
	}

	if !force {
		choice := c.MultiChoice([]string{"No", "Yes"},
			"Deactivating "+acct.ID()+" can not be undone. Continue?")
		if choice != 1 {
			c.Printf("deactivateAccount: cancelled\n")
			return
		}
	}

	ctx, cancel := s.Context()
	defer cancel()
	if err := acct.Deactivate(ctx); err != nil {
		commands.PrintErr(c, "deactivateAccount", err)
		return
	}
	commands.PrintNotice(c, "Account %q is now %s", acct.ID(), acct.Status())
}
