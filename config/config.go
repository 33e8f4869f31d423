package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Config es la configuración completa del sniper.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla el comportamiento del engine: filtro de entrada,
// parámetros del modo activo y límites de cuenta.
type EngineConfig struct {
	Mode string `yaml:"mode"` // normal | ladder

	// Filtro de entrada
	EntryThreshold    float64 `yaml:"entry_threshold"`
	MaxEntryPrice     float64 `yaml:"max_entry_price"`
	MaxSpread         float64 `yaml:"max_spread"`
	TimeWindowMinutes int     `yaml:"time_window_minutes"`

	// Modo normal
	ProfitTarget    float64 `yaml:"profit_target"`
	StopLoss        float64 `yaml:"stop_loss"`
	StopLossDelayMs int     `yaml:"stop_loss_delay_ms"` // 0 = ejecución inmediata

	// Modo ladder
	Steps []domain.Step `yaml:"steps"`

	// Límites de cuenta
	MaxPositions  int     `yaml:"max_positions"`
	CompoundLimit float64 `yaml:"compound_limit"`
	BaseBalance   float64 `yaml:"base_balance"`
	MinOrderUSDC  float64 `yaml:"min_order_usdc"`
	MinShares     float64 `yaml:"min_shares"`

	// Simulación
	InitialBalance float64 `yaml:"initial_balance"` // balance de partida del replay
	Slippage       float64 `yaml:"slippage"`
	PaperFeeRate   float64 `yaml:"paper_fee_rate"`

	// Loop en vivo
	PollIntervalMs       int `yaml:"poll_interval_ms"`
	MarketRefreshSeconds int `yaml:"market_refresh_seconds"`
	Workers              int `yaml:"workers"`
	QueueSize            int `yaml:"queue_size"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	params := cfg.Params()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

// Params convierte la configuración del engine al bundle validable del domain.
func (c *Config) Params() domain.Params {
	return domain.Params{
		Mode:           domain.Mode(c.Engine.Mode),
		EntryThreshold: c.Engine.EntryThreshold,
		MaxEntryPrice:  c.Engine.MaxEntryPrice,
		MaxSpread:      c.Engine.MaxSpread,
		TimeWindow:     time.Duration(c.Engine.TimeWindowMinutes) * time.Minute,
		ProfitTarget:   c.Engine.ProfitTarget,
		StopLoss:       c.Engine.StopLoss,
		StopLossDelay:  time.Duration(c.Engine.StopLossDelayMs) * time.Millisecond,
		Steps:          c.Engine.Steps,
		MaxPositions:   c.Engine.MaxPositions,
		CompoundLimit:  c.Engine.CompoundLimit,
		BaseBalance:    c.Engine.BaseBalance,
		MinOrderUSDC:   c.Engine.MinOrderUSDC,
		MinShares:      c.Engine.MinShares,
		Slippage:       c.Engine.Slippage,
		PaperFeeRate:   c.Engine.PaperFeeRate,
	}
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
}

// MarketRefresh devuelve el intervalo de refresh de mercados como time.Duration.
func (c *Config) MarketRefresh() time.Duration {
	return time.Duration(c.Engine.MarketRefreshSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SNIPER_MODE"); v != "" {
		cfg.Engine.Mode = v
	}
	if v := os.Getenv("SNIPER_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SNIPER_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Engine.InitialBalance = f
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = string(domain.ModeNormal)
	}
	if cfg.Engine.EntryThreshold <= 0 {
		cfg.Engine.EntryThreshold = 0.60
	}
	if cfg.Engine.MaxEntryPrice <= 0 {
		cfg.Engine.MaxEntryPrice = 0.95
	}
	if cfg.Engine.MaxSpread <= 0 {
		cfg.Engine.MaxSpread = 0.05
	}
	if cfg.Engine.TimeWindowMinutes <= 0 {
		cfg.Engine.TimeWindowMinutes = 60
	}
	if cfg.Engine.ProfitTarget <= 0 {
		cfg.Engine.ProfitTarget = 0.95
	}
	if cfg.Engine.StopLoss <= 0 {
		cfg.Engine.StopLoss = 0.40
	}
	if cfg.Engine.MaxPositions <= 0 {
		cfg.Engine.MaxPositions = 1
	}
	if cfg.Engine.MinOrderUSDC <= 0 {
		cfg.Engine.MinOrderUSDC = 1
	}
	if cfg.Engine.MinShares <= 0 {
		cfg.Engine.MinShares = 5
	}
	if cfg.Engine.InitialBalance <= 0 {
		cfg.Engine.InitialBalance = 100
	}
	if cfg.Engine.Slippage < 0 {
		cfg.Engine.Slippage = 0
	}
	if cfg.Engine.PollIntervalMs <= 0 {
		cfg.Engine.PollIntervalMs = 2000
	}
	if cfg.Engine.MarketRefreshSeconds <= 0 {
		cfg.Engine.MarketRefreshSeconds = 30
	}
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.QueueSize <= 0 {
		cfg.Engine.QueueSize = 256
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polysniper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
