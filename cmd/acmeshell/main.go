// acmeshell provides a developer-oriented command-line shell interface for
// interacting with an ACME server.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cpu/acmekit/acme/client"
	acmecmd "github.com/cpu/acmekit/cmd"
	"github.com/cpu/acmekit/internal/logging"
	acmeshell "github.com/cpu/acmekit/shell"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd(afero.NewOsFs())
	err := root.ExecuteContext(context.Background())
	acmecmd.FailOnError(logging.New(slog.LevelError, os.Stderr, nil), err, "acmeshell failed")
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	flagCfg := defaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "acmeshell",
		Short: "Interactive shell for ACME servers",
		Long: `acmeshell is a developer-oriented shell for driving an ACME (RFC 8555)
server by hand: create accounts, place orders, solve challenges with the
embedded challenge response server, finalize orders and fetch certificates.

Settings can be read from a YAML file (--config). Flags override the file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(fs, configPath, cmd.Flags().Changed, flagCfg)
			if err != nil {
				return err
			}
			return run(cmd.Context(), fs, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Optional YAML config file")
	flags.StringVar(&flagCfg.Directory, "directory", flagCfg.Directory, "Directory URL for ACME server")
	flags.StringVar(&flagCfg.CA, "ca", flagCfg.CA, "CA certificate(s) for verifying ACME server HTTPS (system roots when empty)")
	flags.BoolVar(&flagCfg.AutoRegister, "autoregister", flagCfg.AutoRegister, "Create an ACME account automatically at startup if required")
	flags.StringSliceVar(&flagCfg.Contacts, "contact", nil, "Optional contact email address for auto-registered ACME account")
	flags.StringVar(&flagCfg.Account, "account", "", "Optional JSON filepath to save/restore auto-registered ACME account to")
	flags.IntVar(&flagCfg.HTTPPort, "httpPort", flagCfg.HTTPPort, "HTTP-01 challenge server port")
	flags.IntVar(&flagCfg.TLSPort, "tlsPort", flagCfg.TLSPort, "TLS-ALPN-01 challenge server port")
	flags.IntVar(&flagCfg.DNSPort, "dnsPort", flagCfg.DNSPort, "DNS-01 challenge server port")
	flags.StringVar(&flagCfg.ChallSrv, "challSrv", "", "Management API URL of an external pebble-challtestsrv to use instead of the embedded one")
	flags.BoolVar(&flagCfg.Pebble, "pebble", false, "Use Pebble defaults")
	flags.DurationVar(&flagCfg.PollInterval, "pollInterval", flagCfg.PollInterval, "Interval between polls of challenges and orders")
	flags.DurationVar(&flagCfg.CommandTimeout, "commandTimeout", flagCfg.CommandTimeout, "Timeout of a single shell command (0 for none)")
	flags.Float64Var(&flagCfg.RequestsPerSecond, "rps", 0, "Maximum requests per second sent to the ACME server (0 for no limit)")
	flags.StringVar(&flagCfg.LogLevel, "logLevel", flagCfg.LogLevel, "Log level: trace, debug, info, warn or error")
	flags.StringVar(&flagCfg.LogJSON, "logJSON", "", "Optional file to also write JSON logs to")
	flags.BoolVar(&flagCfg.Dump, "dump", false, "Log every HTTP exchange at trace level")
	flags.StringVar(&flagCfg.In, "in", "", "Optional file of shell commands to run instead of reading the terminal")
	return cmd
}

func run(ctx context.Context, fs afero.Fs, cfg *Config, out io.Writer) error {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	var jsonOut io.Writer
	if cfg.LogJSON != "" {
		f, err := fs.OpenFile(cfg.LogJSON, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return errors.Wrap(err, "opening JSON log file")
		}
		defer f.Close()
		jsonOut = f
	}
	logger := logging.New(level, os.Stderr, jsonOut)

	if cfg.In != "" {
		f, err := os.Open(cfg.In)
		if err != nil {
			return errors.Wrap(err, "opening command file")
		}
		defer f.Close()
		if err := redirectStdin(int(f.Fd())); err != nil {
			return errors.Wrap(err, "redirecting stdin")
		}
	}

	shell, err := acmeshell.NewACMEShell(ctx, &acmeshell.ACMEShellOptions{
		ClientConfig: client.ClientConfig{
			DirectoryURL:      cfg.Directory,
			CACert:            cfg.CA,
			UserAgent:         "acmeshell",
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
			Dump:              cfg.Dump,
		},
		HTTPPort:       cfg.HTTPPort,
		TLSPort:        cfg.TLSPort,
		DNSPort:        cfg.DNSPort,
		ChallSrvAddr:   cfg.ChallSrv,
		AutoRegister:   cfg.AutoRegister,
		Contacts:       cfg.Contacts,
		AccountPath:    cfg.Account,
		PollInterval:   cfg.PollInterval,
		CommandTimeout: cfg.CommandTimeout,
	})
	if err != nil {
		return err
	}

	go acmecmd.CatchSignals(logger, shell.Shutdown)
	shell.Run(out)
	return nil
}
