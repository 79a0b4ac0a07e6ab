// Package root contains the root command and the state shared by the
// subcommands: configuration, logger and the dependency container.
package root

import (
	"fmt"
	"io"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/logging"

	"github.com/spf13/cobra"
)

// GlobalFlags are the persistent flags of every command.
type GlobalFlags struct {
	ConfigFile string
	LogLevel   string
	LogFormat  string
	Driver     string
	Database   string
	Owner      string
	Report     string
}

var (
	// Log is the shared logger of the commands.
	Log logging.Logger = logging.NewLogrusAdapter("info", "text")

	// Flags holds the parsed persistent flags.
	Flags = GlobalFlags{}

	appConfig    *config.Config
	appContainer *container.Container

	// Cmd is the root command.
	Cmd = &cobra.Command{
		Use:   "stmt-ledger",
		Short: "Import bank statements, recognise merchants and tag transactions.",
		Long: `stmt-ledger imports mBank account statements into a local ledger.
Every transaction is de-duplicated, matched to a merchant and store, and
tagged by user rules, merchant defaults and built-in heuristics.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appContainer == nil {
				return
			}
			if err := appContainer.Close(); err != nil {
				Log.WithError(err).Warn("Failed to close resources")
			}
			appContainer = nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Init registers the persistent flags.
func Init() {
	pf := Cmd.PersistentFlags()
	pf.StringVar(&Flags.ConfigFile, "config", "", "Config file (default: config.yaml in $HOME/.stmt-ledger, .stmt-ledger or .)")
	pf.StringVar(&Flags.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&Flags.LogFormat, "log-format", "", "Log format (text or json)")
	pf.StringVar(&Flags.Driver, "driver", "", "Database driver (sqlite or postgres)")
	pf.StringVar(&Flags.Database, "db", "", "Database DSN or sqlite file")
	pf.StringVar(&Flags.Owner, "owner", "", "Identity owning the imported data")
	pf.StringVar(&Flags.Report, "report", "text", "Output format of reports (text or json)")
}

func setup(cmd *cobra.Command, args []string) error {
	config.LoadEnv()

	var (
		cfg *config.Config
		err error
	)
	if Flags.ConfigFile != "" {
		cfg, err = config.InitializeConfigFromFile(Flags.ConfigFile)
	} else {
		cfg, err = config.InitializeConfig()
	}
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, Flags); err != nil {
		return err
	}

	c, err := container.NewContainer(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	SetContainer(c)
	return nil
}

// applyOverrides copies the non-empty flags onto cfg and validates it again.
func applyOverrides(cfg *config.Config, f GlobalFlags) error {
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.Log.Format = f.LogFormat
	}
	if f.Driver != "" {
		cfg.Database.Driver = f.Driver
	}
	if f.Database != "" {
		cfg.Database.DSN = f.Database
	}
	if f.Owner != "" {
		cfg.Import.Owner = f.Owner
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SetContainer installs c as the container of the running command.
func SetContainer(c *container.Container) {
	appContainer = c
	if c != nil {
		appConfig = c.GetConfig()
		Log = c.GetLogger()
	}
}

// GetContainer returns the container built for the running command.
func GetContainer() *container.Container {
	return appContainer
}

// Owner returns the identity the command acts for.
func Owner() string {
	if appConfig == nil {
		return config.Default().Import.Owner
	}
	return appConfig.Import.Owner
}

// Print writes out to the command's output, ending it with a newline.
func Print(w io.Writer, out []byte) error {
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	_, err := w.Write(out)
	return err
}
