// Package config handles statify configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level statify configuration.
type Config struct {
	Establishments []Establishment `yaml:"establishments"`
	Attempts       AttemptsConfig  `yaml:"attempts"`
	Browser        BrowserConfig   `yaml:"browser"`
	Telegram       TelegramConfig  `yaml:"telegram"`
	SMS            SMSConfig       `yaml:"sms"`
	Account        AccountConfig   `yaml:"account"`
	Report         ReportConfig    `yaml:"report"`
	Status         StatusConfig    `yaml:"status"`
	Ranking        RankingConfig   `yaml:"ranking"`

	// RepetitionPause is the idle period between two full passes over all
	// establishments, to avoid correlated request bursts.
	RepetitionPause time.Duration `yaml:"repetition_pause"`
}

// Establishment is the immutable description of one tracked business.
type Establishment struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Niche       string      `yaml:"niche"`
	Address     string      `yaml:"address"` // partial: "street, house-number"
	Coordinates Coordinates `yaml:"coordinates"`
	Queries     []string    `yaml:"queries"`
	Repeats     int         `yaml:"repeats"`
	UniqueCase  bool        `yaml:"unique_case"`
	ActionOrder []string    `yaml:"action_order"` // e.g. [whatsapp, telegram, site]
}

// Coordinates is a lat/lon pair submitted to the map location search.
type Coordinates struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// AttemptsConfig holds the three independent retry budgets plus the
// interaction bounds.
type AttemptsConfig struct {
	Process      int `yaml:"process"`       // whole per-establishment pipeline
	ListRetrieve int `yaml:"list_retrieve"` // re-scroll/reload the result page
	TargetLocate int `yaml:"target_locate"` // re-query + re-search the target
	MaxDecoys    int `yaml:"max_decoys"`    // decoys browsed before the target
	MaxZoom      int `yaml:"max_zoom"`      // zoom-in steps cap per attempt
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	Remote        string        `yaml:"remote"`         // ws URL of external Chrome; empty = launch
	Headless      bool          `yaml:"headless"`       // default false: the flow needs a visible session
	ConditionWait time.Duration `yaml:"condition_wait"` // bounded explicit-wait deadline
	ReloadPause   time.Duration `yaml:"reload_pause"`   // settle time after a page reload
}

// TelegramConfig configures the notifier. Token and chat ID come from the
// environment when unset (TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID).
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// SMSConfig configures the 365sms provider. APIKey falls back to
// API_365SMS_KEY.
type SMSConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	NumberWait   time.Duration `yaml:"number_wait"`    // pause between getNumber retries
	CodeWait     time.Duration `yaml:"code_wait"`      // pause between getStatus polls
	CodeDeadline time.Duration `yaml:"code_deadline"`  // total wait before giving the number up
}

// AccountConfig holds registration and dev-mode account data. Passwords fall
// back to ACCOUNT_PASSWORD / TEST_ACCOUNT_PASSWORD; the dev login to
// TEST_ACCOUNT_USERNAME.
type AccountConfig struct {
	Password    string `yaml:"password"`
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	DevLogin    string `yaml:"dev_login"`
	DevPassword string `yaml:"dev_password"`
	CookieFile  string `yaml:"cookie_file"`
}

// ReportConfig controls the XLSX report output.
type ReportConfig struct {
	Dir string `yaml:"dir"`
}

// StatusConfig controls the optional local status endpoint.
type StatusConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// RankingConfig controls the persistent record store.
type RankingConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoadFile reads a YAML configuration file and applies defaults and
// environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Attempts.Process <= 0 {
		c.Attempts.Process = 5
	}
	if c.Attempts.ListRetrieve <= 0 {
		c.Attempts.ListRetrieve = 2
	}
	if c.Attempts.TargetLocate <= 0 {
		c.Attempts.TargetLocate = 2
	}
	if c.Attempts.MaxDecoys <= 0 {
		c.Attempts.MaxDecoys = 5
	}
	if c.Attempts.MaxZoom <= 0 {
		c.Attempts.MaxZoom = 5
	}
	if c.Browser.ConditionWait <= 0 {
		c.Browser.ConditionWait = 30 * time.Second
	}
	if c.Browser.ReloadPause <= 0 {
		c.Browser.ReloadPause = 5 * time.Second
	}
	if c.SMS.BaseURL == "" {
		c.SMS.BaseURL = "https://365sms.ru/stubs/handler_api.php"
	}
	if c.SMS.NumberWait <= 0 {
		c.SMS.NumberWait = 5 * time.Second
	}
	if c.SMS.CodeWait <= 0 {
		c.SMS.CodeWait = 90 * time.Second
	}
	if c.SMS.CodeDeadline <= 0 {
		c.SMS.CodeDeadline = 185 * time.Second
	}
	if c.Account.FirstName == "" {
		c.Account.FirstName = "Иван"
	}
	if c.Account.LastName == "" {
		c.Account.LastName = "Иванов"
	}
	if c.Account.CookieFile == "" {
		c.Account.CookieFile = "test_account_cookie"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "."
	}
	if c.Ranking.DBPath == "" {
		c.Ranking.DBPath = "statify.db"
	}
	for i := range c.Establishments {
		if c.Establishments[i].ID == "" {
			c.Establishments[i].ID = c.Establishments[i].Name
		}
		if c.Establishments[i].Repeats <= 0 {
			c.Establishments[i].Repeats = 1
		}
	}
}

func (c *Config) applyEnv() {
	overlay(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	overlay(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	overlay(&c.SMS.APIKey, "API_365SMS_KEY")
	overlay(&c.Account.Password, "ACCOUNT_PASSWORD")
	overlay(&c.Account.DevLogin, "TEST_ACCOUNT_USERNAME")
	overlay(&c.Account.DevPassword, "TEST_ACCOUNT_PASSWORD")
}

func overlay(dst *string, env string) {
	if *dst == "" {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

func (c *Config) validate() error {
	if len(c.Establishments) == 0 {
		return fmt.Errorf("config: no establishments configured")
	}
	for _, e := range c.Establishments {
		if e.Name == "" {
			return fmt.Errorf("config: establishment without a name")
		}
		if len(e.Queries) == 0 {
			return fmt.Errorf("config: establishment %q has no queries", e.Name)
		}
	}
	return nil
}

// MaxRepeats returns the largest repeats value across all establishments,
// i.e. how many outer repetition passes the run performs.
func (c *Config) MaxRepeats() int {
	max := 0
	for _, e := range c.Establishments {
		if e.Repeats > max {
			max = e.Repeats
		}
	}
	return max
}
