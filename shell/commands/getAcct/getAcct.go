package getAcct

import (
	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "getAccount",
			Aliases:  []string{"getAcct", "getReg", "getRegistration"},
			Help:     "Refresh and print the active ACME account",
			LongHelp: `Fetch the active account from the ACME server and print it as JSON.`,
		},
		nil,
		getAccountHandler)
}

func getAccountHandler(c *ishell.Context, _ []string) {
	s := commands.GetSession(c)
	acct, err := s.Active()
	if err != nil {
		commands.PrintErr(c, "getAccount", err)
		return
	}

	ctx, cancel := s.Context()
	defer cancel()
	if err := acct.Refresh(ctx); err != nil {
		commands.PrintErr(c, "getAccount", err)
		return
	}

	acctStr, err := commands.PrintJSON(acct.Resource())
	if err != nil {
		commands.PrintErr(c, "getAccount", err)
		return
	}
	c.Printf("%s\n", acctStr)
}
