package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Access    AccessConfig    `json:"access"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Inventory InventoryConfig `json:"inventory"`
	Web       WebConfig       `json:"web"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to an operator
// chat, rate limited so a failure storm cannot flood Telegram.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// AccessConfig controls who can talk to the bot. AdminPassword promotes a
// user to admin when sent as a plain message in a private chat.
type AccessConfig struct {
	AdminPassword string `json:"admin_password"`
}

type SchedulerConfig struct {
	// Tick is the dispatch loop interval, a Go duration string. Default "1s".
	Tick string `json:"tick"`
	// Timezone for the replan and daily jobs (e.g. "Europe/Moscow").
	Timezone string `json:"timezone,omitempty"`
	// InventoryClearTime is the local HH:MM at which branch inventories
	// reset. Default "00:00".
	InventoryClearTime string `json:"inventory_clear_time,omitempty"`
}

// StorageConfig points at the JSON data directory holding events,
// pending notifications and chat registrations.
type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

type InventoryConfig struct {
	// SQLitePath is the inventory database file. ":memory:" works for tests.
	SQLitePath string `json:"sqlite_path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// AllowedOrigins for CORS; "*" allows any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// Default returns the configuration used when a section is omitted.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
			Telegram: LoggingTelegram{
				MinLevel:   "ERROR",
				RatePerSec: 1,
			},
		},
		Scheduler: SchedulerConfig{
			Tick:               "1s",
			Timezone:           "Europe/Moscow",
			InventoryClearTime: "00:00",
		},
		Storage:   StorageConfig{DataDir: "./data"},
		Inventory: InventoryConfig{SQLitePath: "./data/inventory.db"},
		Web: WebConfig{
			Enabled:        true,
			Addr:           ":5000",
			AllowedOrigins: []string{"*"},
		},
	}
}
