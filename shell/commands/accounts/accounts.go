package accounts

import (
	"flag"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/cpu/acmekit/shell/commands"
)

type accountsOptions struct {
	printID      bool
	printContact bool
}

const (
	longHelp = `
	accounts:
		List the ACME accounts that have been created or loaded during the shell
		session. Each account's ID, status and contact information will be
		printed. The active account is marked with "*".

	accounts -showID=false:
		List ACME accounts printing only each account's contact info.
	
	accounts -showContact=false:
		List ACME accounts printing only each account's ID.`
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "accounts",
			Help:     "Show available ACME accounts",
			LongHelp: longHelp,
		},
		nil,
		accountsHandler)
}

func accountsHandler(c *ishell.Context, args []string) {
	opts := accountsOptions{}
	accountsFlags := flag.NewFlagSet("accounts", flag.ContinueOnError)
	accountsFlags.BoolVar(&opts.printID, "showID", true, "Print ACME account IDs")
	accountsFlags.BoolVar(&opts.printContact, "showContact", true, "Print ACME account contact info")

	if _, err := commands.ParseFlagSetArgs(args, accountsFlags); err != nil {
		return
	}

	if !opts.printID && !opts.printContact {
		c.Printf("accounts: -showID and -showContact can not both be false\n")
		return
	}

	listAccounts(c, commands.GetSession(c), opts)
}

func listAccounts(p commands.Printer, s *commands.Session, opts accountsOptions) {
	accounts := s.Accounts()
	if len(accounts) == 0 {
		p.Printf("No accounts\n")
		return
	}

	activeIndex := s.ActiveIndex()
	for i, acct := range accounts {
		active := " "
		if i == activeIndex {
			active = "*"
		}

		p.Printf("%s", active)
		p.Printf("%3d)", i)

		if opts.printContact {
			contacts := "none"
			if len(acct.Contacts()) > 0 {
				contacts = strings.Join(acct.Contacts(), ", ")
			}
			p.Printf(" %s", contacts)
		}

		if opts.printID {
			p.Printf(" %q", acct.ID())
		}

		p.Printf(" (%s)\n", acct.Status())
	}
}
