package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"paper-trader/internal/catalog"
	"paper-trader/internal/config"
	"paper-trader/internal/logging"
	"paper-trader/internal/trading"
	"paper-trader/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Catalog *catalog.Static
}

// catalog returns the instrument catalog, loading it on first use.
func (a *App) catalog() (*catalog.Static, error) {
	if a.Catalog != nil {
		return a.Catalog, nil
	}
	opts := catalog.DefaultOptions()
	opts.Seed = a.Config.Catalog.Seed
	opts.Expiries = a.Config.Catalog.Expiries
	opts.StrikesEachSide = a.Config.Catalog.StrikesEachSide

	cat, err := catalog.Load(a.Config.Catalog.File, opts)
	if err != nil {
		return nil, err
	}
	a.Catalog = cat
	a.Logger.Debug().Int("instruments", len(cat.Instruments())).Msg("Catalog loaded")
	return cat, nil
}

// newDesk builds a desk over the catalog publishing to sink.
func (a *App) newDesk(sink trading.EventSink) (*trading.Desk, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	return trading.NewDesk(trading.DeskConfig{
		InitialBalance: a.Config.InitialBalance(),
		Margin:         trading.NewMarginCalculator(a.Config.DerivativeRate()),
		Catalog:        cat,
		Sink:           sink,
		Logger:         a.Logger,
	}), nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "papertrader",
		Short: "Paper trading engine for the Indian markets",
		Long: `Paper Trader simulates order execution and portfolio accounting for NSE
equity, delivery, futures and options without a broker.

Orders fill against a local instrument catalog. Margin, funds, positions and
holdings are tracked exactly as a live account would report them.

Use 'papertrader serve' to start the HTTP API.
Use 'papertrader run <script>' to replay a scenario.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/paper-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newMarginCmd(app))
	rootCmd.AddCommand(newInstrumentsCmd(app))
	rootCmd.AddCommand(newChainCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("Paper Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.TemplatePath(app.Config.Dir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
				return
			}
			output.Println(path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	if cfg.Path != "" {
		output.Dim("Loaded from %s", cfg.Path)
	} else {
		output.Dim("Using built-in defaults")
	}
	output.Println()

	output.Bold("Trading")
	output.Printf("  Initial Balance: %s\n", utils.FormatINR(cfg.InitialBalance()))
	output.Printf("  Default Account: %s\n", cfg.Trading.DefaultAccount)
	output.Printf("  F&O Margin Rate: %s%%\n", cfg.DerivativeRate().Shift(2).String())
	output.Println()

	output.Bold("Catalog")
	file := cfg.Catalog.File
	if file == "" {
		file = "(built-in)"
	}
	output.Printf("  File:            %s\n", file)
	output.Printf("  Seed:            %d\n", cfg.Catalog.Seed)
	output.Printf("  Expiries:        %d\n", cfg.Catalog.Expiries)
	output.Printf("  Strikes/Side:    %d\n", cfg.Catalog.StrikesEachSide)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Journal:         %v\n", cfg.Journal.Enabled)
	output.Printf("  Kafka:           %v\n", cfg.Kafka.Enabled)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)
}
