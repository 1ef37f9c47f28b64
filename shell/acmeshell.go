// Package shell provides an interactive command shell and the associated
// acmeshell commands.
package shell

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/abiosoft/readline"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/acme/solver"
	"github.com/cpu/acmekit/internal/logging"
	"github.com/cpu/acmekit/shell/commands"
	_ "github.com/cpu/acmekit/shell/commands/accounts"
	_ "github.com/cpu/acmekit/shell/commands/challSrv"
	_ "github.com/cpu/acmekit/shell/commands/deactivateAccount"
	_ "github.com/cpu/acmekit/shell/commands/deactivateAuthz"
	_ "github.com/cpu/acmekit/shell/commands/finalize"
	_ "github.com/cpu/acmekit/shell/commands/getAcct"
	_ "github.com/cpu/acmekit/shell/commands/getAuthz"
	_ "github.com/cpu/acmekit/shell/commands/getCert"
	_ "github.com/cpu/acmekit/shell/commands/getOrder"
	_ "github.com/cpu/acmekit/shell/commands/keyAuth"
	_ "github.com/cpu/acmekit/shell/commands/loadAccount"
	_ "github.com/cpu/acmekit/shell/commands/newAccount"
	_ "github.com/cpu/acmekit/shell/commands/newOrder"
	_ "github.com/cpu/acmekit/shell/commands/orders"
	_ "github.com/cpu/acmekit/shell/commands/revokeCert"
	_ "github.com/cpu/acmekit/shell/commands/rollover"
	_ "github.com/cpu/acmekit/shell/commands/saveAccount"
	_ "github.com/cpu/acmekit/shell/commands/solve"
	_ "github.com/cpu/acmekit/shell/commands/solveAll"
	_ "github.com/cpu/acmekit/shell/commands/switchAccount"
	"github.com/letsencrypt/challtestsrv"
	"github.com/pkg/errors"
)

// ACMEShellOptions allows specifying options for creating an ACME shell. This
// includes all of the client.ClientConfig options in addition to challenge
// server response ports for HTTP-01, TLS-ALPN-01 and DNS-01 challenges.
type ACMEShellOptions struct {
	client.ClientConfig
	// Port number the ACME server validates HTTP-01 challenges over.
	HTTPPort int
	// Port number the ACME server validates TLS-ALPN-01 challenges over.
	TLSPort int
	// Port number the ACME server validates DNS-01 challenges over.
	DNSPort int
	// Management API address of an external pebble-challtestsrv. When set no
	// challenge server is embedded.
	ChallSrvAddr string
	// Create an account at startup when AccountPath holds none.
	AutoRegister bool
	// Contacts of an auto-registered account.
	Contacts []string
	// Optional JSON filepath to save/restore the auto-registered account.
	AccountPath string
	// Interval between polls of challenges and orders.
	PollInterval time.Duration
	// Timeout of a single shell command. Zero means no timeout.
	CommandTimeout time.Duration
}

// ACMEShell is an ishell.Shell instance tailored for ACME. At its core an
// ACMEShell is a commands.Session around a resolved client.Directory, with an
// associated challenge response server.
type ACMEShell struct {
	*ishell.Shell
	session  *commands.Session
	challSrv *challtestsrv.ChallSrv
	log      *slog.Logger
}

// NewACMEShell creates an ACMEShell instance: it resolves the ACME server's
// directory, creates the challenge response server and restores or registers
// the initial account. The shell and its embedded challenge test server are not
// started until Run is called.
func NewACMEShell(ctx context.Context, opts *ACMEShellOptions) (*ACMEShell, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
		opts.Logger = logger
	}

	dir, err := client.Resolve(ctx, opts.ClientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve ACME directory")
	}

	var challSrv *challtestsrv.ChallSrv
	var published solver.ChallengeServer
	if opts.ChallSrvAddr != "" {
		remote, err := solver.NewRemoteChallengeServer(opts.ChallSrvAddr, logger)
		if err != nil {
			return nil, err
		}
		published = remote
	} else {
		challSrv, err = challtestsrv.New(challtestsrv.Config{
			HTTPOneAddrs:    []string{fmt.Sprintf(":%d", opts.HTTPPort)},
			TLSALPNOneAddrs: []string{fmt.Sprintf(":%d", opts.TLSPort)},
			DNSOneAddrs:     []string{fmt.Sprintf(":%d", opts.DNSPort)},
			Log:             log.New(os.Stdout, "challRespSrv: ", log.Ldate|log.Ltime),
		})
		if err != nil {
			return nil, errors.Wrap(err, "unable to create challenge test server")
		}
		published = challSrv
	}

	session, err := commands.NewSession(commands.SessionConfig{
		Directory: dir,
		ChallSrv:  published,
		Interval:  opts.PollInterval,
		Timeout:   opts.CommandTimeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if err := initialAccount(ctx, session, opts); err != nil {
		return nil, err
	}

	// Create an interactive shell
	shell := ishell.NewWithConfig(&readline.Config{
		// The base prompt used for the ishell instance.
		Prompt: commands.BasePrompt,
	})
	// Stash the session in the shell for commands to access
	shell.Set(commands.SessionKey, session)
	commands.AddCommands(shell, session)

	return &ACMEShell{
		Shell:    shell,
		session:  session,
		challSrv: challSrv,
		log:      logger,
	}, nil
}

// initialAccount restores the account saved at AccountPath, or registers one
// when AutoRegister is set and saves it there.
func initialAccount(ctx context.Context, s *commands.Session, opts *ACMEShellOptions) error {
	var store *client.FileAccountStore
	if opts.AccountPath != "" {
		store = &client.FileAccountStore{Fs: s.Fs(), Path: opts.AccountPath}
		if store.Exists() {
			acct, err := s.Directory().Restore(ctx, store)
			if err != nil {
				return errors.Wrapf(err, "unable to restore account from %q", opts.AccountPath)
			}
			s.AddAccount(acct)
			s.Logger().Info("restored account", "kid", acct.ID(), "path", opts.AccountPath)
			return nil
		}
	}
	if !opts.AutoRegister {
		return nil
	}

	signer, err := keys.NewSigner("ecdsa")
	if err != nil {
		return err
	}
	acct, err := s.Directory().Register(ctx, signer, opts.Contacts, nil)
	if err != nil {
		return errors.Wrap(err, "unable to auto-register account")
	}
	s.AddAccount(acct)
	s.Logger().Info("registered account", "kid", acct.ID())
	if store != nil {
		return store.Save(acct)
	}
	return nil
}

// Session returns the shell's session.
func (shell *ACMEShell) Session() *commands.Session {
	return shell.session
}

// Run starts the ACMEShell, dropping into an interactive session that blocks
// on user input until it is time to exit. The ACMEShell's embedded challenge
// server is started before starting the shell, and shut down after the shell
// session ends.
func (shell *ACMEShell) Run(out io.Writer) {
	if shell.challSrv != nil {
		go shell.challSrv.Run()
	}

	fmt.Fprintln(out, "Welcome to ACME Shell")
	if acct, err := shell.session.Active(); err == nil {
		fmt.Fprintf(out, "Active account is %q\n", acct.ID())
	}
	shell.Shell.Run()
	fmt.Fprintln(out, "Goodbye!")
	shell.Shutdown()
}

// Shutdown stops the embedded challenge server, if any.
func (shell *ACMEShell) Shutdown() {
	if shell.challSrv != nil {
		shell.challSrv.Shutdown()
	}
}
