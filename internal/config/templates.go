package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Paper Trader Configuration

[trading]
initial_balance = 1000000.0  # ₹10,00,000
default_account = "default"

[margin]
# Fraction of notional reserved for futures and options
derivative_rate = 0.12

[catalog]
# YAML instrument list; leave empty for the built-in NSE universe
file = ""
seed = 42
expiries = 3
strikes_each_side = 8

[server]
addr = "127.0.0.1:8080"
read_timeout = "10s"
write_timeout = "10s"
shutdown_timeout = "5s"

[journal]
enabled = false
# path = "~/.config/paper-trader/journal.db"

[kafka]
enabled = false
brokers = ["localhost:9092"]
topic = "paper-trader.events"

[log]
level = "info"   # debug, info, warn, error
console = true
json = false
file = false
max_size_mb = 100
max_backups = 7
max_age_days = 30
`

// TemplatePath returns where the config template is written for configDir.
func TemplatePath(configDir string) string {
	return filepath.Join(configDir, "config.toml")
}

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := TemplatePath(configDir)
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
