// Command papertrader runs the paper trading engine.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"paper-trader/internal/cli"
	"paper-trader/internal/config"
	"paper-trader/internal/logging"
)

func main() {
	cfg, err := config.Load(configDirFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logCfg := cfg.Logging()
	logCfg.Out = os.Stderr
	logger := logging.NewLoggerWithConfig(logCfg)
	if cfg.Created {
		logger.Info().Str("path", config.TemplatePath(cfg.Dir)).Msg("Wrote default configuration")
	}

	root := cli.NewRootCmd(cfg, logger)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// configDirFromArgs finds --config before cobra parses flags, since the
// configuration is needed to build the command tree.
func configDirFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return ""
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}
