package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/geocoder89/certhub/internal/offline"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by every command.
type RootOptions struct {
	Verbose         bool
	Format          string
	ConfigPath      string
	Database        string
	EventsURL       string
	CertificatesURL string
	Token           string
	Timeout         time.Duration

	log  *slog.Logger
	file FileConfig
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "certhub-offline",
		Short: "Queue certhub actions while offline and replay them later",
		Long: `certhub-offline keeps a local queue of mutations made without a network
connection and replays them, oldest first, against the events and
certificate services once they are reachable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.complete(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to TOML config (default "+defaultConfigPath()+")")
	flags.StringVar(&opts.Database, "db", "", "path to the local queue database")
	flags.StringVar(&opts.EventsURL, "events-url", "", "events service base URL")
	flags.StringVar(&opts.CertificatesURL, "certificates-url", "", "certificate service base URL")
	flags.StringVar(&opts.Token, "token", "", "bearer token sent on replay")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "per-request timeout")

	cmd.AddCommand(
		newAddCommand(opts),
		newListCommand(opts),
		newPendingCommand(opts),
		newSyncCommand(opts),
		newRetryCommand(opts),
		newRemoveCommand(opts),
		newClearCommand(opts),
		newWatchCommand(opts),
	)

	return cmd
}

// complete validates flags and fills unset ones from the config file.
func (o *RootOptions) complete(cmd *cobra.Command) error {
	if !slices.Contains(validFormats, o.Format) {
		return wrapExit(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, validFormats), nil)
	}

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	path, explicit := o.ConfigPath, o.ConfigPath != ""
	if !explicit {
		path = defaultConfigPath()
	}
	fc, err := loadFileConfig(path, explicit)
	if err != nil {
		return wrapExit(ExitCommandError, "load config", err)
	}
	o.file = fc

	o.Database = firstNonEmpty(o.Database, fc.Database, defaultDatabasePath())
	o.EventsURL = firstNonEmpty(o.EventsURL, fc.EventsURL, "http://localhost:8081")
	o.CertificatesURL = firstNonEmpty(o.CertificatesURL, fc.CertificatesURL, "http://localhost:8082")
	o.Token = firstNonEmpty(o.Token, fc.Token)

	if o.Timeout == 0 && fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return wrapExit(ExitCommandError, "invalid timeout in config", err)
		}
		o.Timeout = d
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}

	o.log.Debug("config resolved",
		"config", path,
		"db", o.Database,
		"events_url", o.EventsURL,
		"certificates_url", o.CertificatesURL,
	)
	return nil
}

func (o *RootOptions) openStore() (*offline.Store, error) {
	if dir := filepath.Dir(o.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, wrapExit(ExitCommandError, "create queue directory", err)
		}
	}
	s, err := offline.Open(o.Database)
	if err != nil {
		return nil, wrapExit(ExitCommandError, "open queue", err)
	}
	return s, nil
}

func (o *RootOptions) dispatcher() *offline.HTTPDispatcher {
	return offline.NewHTTPDispatcher(offline.DispatcherConfig{
		EventsURL:       o.EventsURL,
		CertificatesURL: o.CertificatesURL,
		Token:           o.Token,
		Timeout:         o.Timeout,
	})
}

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
