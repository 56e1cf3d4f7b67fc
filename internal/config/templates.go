package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Forex Analyzer Configuration

[ingest]
# Source used when --source is not given: auto, MT4, MT5, cTrader, generic
default_source = "auto"
# Account currency when it cannot be inferred from symbols
default_currency = "USD"
default_leverage = 100
max_file_size_mb = 50
# Files imported in parallel by "upload"
upload_workers = 4

[validation]
min_trade_size = 0.01
# Sizes above this produce a warning
max_trade_size = 1000.0
min_price = 0.0001
# Prices above this produce a warning
max_price = 100000.0
# Allowed slack between metadata.date_range and the trades
date_tolerance = "24h"
# Profit consistency tolerance: max(pct * expected, min)
profit_tolerance_pct = 0.10
profit_tolerance_min = 1.0
contract_size = 100000.0

[analysis]
confidence_level = 0.95
rolling_window = 30
# hour, day, week, month, all
granularity = "hour"

[risk]
# Annual risk-free rate, applied per trading day (rate / 252)
risk_free_rate = 0.02
confidence_levels = [0.95, 0.99]
monte_carlo_simulations = 10000
seed = 42
min_trades = 10

[ml]
seed = 42
n_estimators = 100
max_depth = 10
n_init = 10
min_cluster_trades = 5
min_classify_trades = 20
min_quick_trades = 10
dbscan_eps = 0.5
dbscan_min_samples = 5
iqr_multiplier = 1.5
workers = 4

[insights]
low_win_rate = 0.4
high_win_rate = 0.7
min_profit_factor = 1.2
min_win_loss_ratio = 1.5
hour_profit_gap = 100.0
max_consecutive_losses = 5
max_drawdown_pct = 20.0
worst_symbol_loss = -50.0
max_daily_trades = 10.0
size_variation = 0.5
directional_gap = 100.0

[storage]
# db_path = "~/.config/forex-analyzer/fxanalyzer.db"
cache_ttl = "24h"

[logging]
# trace, debug, info, warn, error
level = "info"
file = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
