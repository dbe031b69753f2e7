// Package config loads the daemon configuration from YAML.
//
// Values may reference environment variables as ${NAME}; they are expanded
// before parsing so secrets can stay out of the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teclab-at/logic-nodes/internal/automower"
	"github.com/teclab-at/logic-nodes/internal/delivery"
	"github.com/teclab-at/logic-nodes/internal/gpio"
	"github.com/teclab-at/logic-nodes/internal/logger"
	"github.com/teclab-at/logic-nodes/internal/mail"
	"github.com/teclab-at/logic-nodes/internal/mqtt"
	"github.com/teclab-at/logic-nodes/internal/natspub"
	"github.com/teclab-at/logic-nodes/internal/telegram"
)

// Config is the full daemon configuration.
type Config struct {
	Log        logger.Config    `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	NATS       NATSConfig       `yaml:"nats"`
	Automower  AutomowerConfig  `yaml:"automower"`
	Mail       MailConfig       `yaml:"mail"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Thermostat ThermostatConfig `yaml:"thermostat"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	BufferSize  int    `yaml:"buffer_size"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AutomowerConfig configures the mower status node.
type AutomowerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	// Verbose logs every step at debug level.
	Verbose      bool          `yaml:"verbose"`
	AppID        string        `yaml:"app_id"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	MowerName    string        `yaml:"mower_name"`
	AuthURL      string        `yaml:"auth_url"`
	MowersURL    string        `yaml:"mowers_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MailConfig configures the SMTP node.
type MailConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Name       string        `yaml:"name"`
	Verbose    bool          `yaml:"verbose"`
	SMTP       mail.Config   `yaml:"smtp"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// TelegramConfig configures the chat node.
type TelegramConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Name       string        `yaml:"name"`
	Verbose    bool          `yaml:"verbose"`
	BaseURL    string        `yaml:"base_url"`
	BotToken   string        `yaml:"bot_token"`
	ChatID     string        `yaml:"chat_id"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ThermostatConfig configures the temperature controller.
type ThermostatConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Verbose bool   `yaml:"verbose"`
	// Valve selects the relay line. With SimulateValve the line is not
	// touched and valve decisions only reach the outputs.
	Valve         gpio.Config `yaml:"valve"`
	SimulateValve bool        `yaml:"simulate_valve"`
	// StorePath persists the stored setpoint across restarts. Empty keeps
	// it in memory only.
	StorePath string `yaml:"store_path"`
}

// Default returns a configuration with every default filled in and all
// nodes disabled.
func Default() *Config {
	return &Config{
		Log:  logger.Config{Level: "info"},
		HTTP: HTTPConfig{Addr: ":8080"},
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "logic-nodes",
			TopicPrefix: mqtt.DefaultTopicPrefix,
			BufferSize:  mqtt.DefaultBufferSize,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Name:          "logic-nodes",
			SubjectPrefix: natspub.DefaultSubjectPrefix,
		},
		Automower: AutomowerConfig{
			Name:         "mower",
			AuthURL:      automower.DefaultAuthURL,
			MowersURL:    automower.DefaultMowersURL,
			PollInterval: 5 * time.Minute,
			Timeout:      automower.DefaultTimeout,
		},
		Mail: MailConfig{
			Name:       "mail",
			SMTP:       mail.Config{Port: 587, Encryption: mail.EncryptionAuto, FromName: mail.DefaultFromName, Timeout: 10 * time.Second},
			Retries:    delivery.DefaultMaxAttempts,
			RetryDelay: delivery.DefaultRetryDelay,
		},
		Telegram: TelegramConfig{
			Name:       "telegram",
			BaseURL:    telegram.DefaultBaseURL,
			Timeout:    telegram.DefaultTimeout,
			Retries:    delivery.DefaultMaxAttempts,
			RetryDelay: delivery.DefaultRetryDelay,
		},
		Thermostat: ThermostatConfig{
			Name:  "thermostat",
			Valve: gpio.Config{Chip: gpio.DefaultChip, Line: gpio.DefaultLine},
		},
	}
}

// Load reads and validates the file at path. Fields missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enabled sections. It normalises the SMTP encryption
// value in place.
func (c *Config) Validate() error {
	var errs []error
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}

	names := map[string]string{}
	unique := func(section, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", section))
			return
		}
		if other, ok := names[name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q already used by %s", section, name, other))
			return
		}
		names[name] = section
	}

	if a := c.Automower; a.Enabled {
		unique("automower", a.Name)
		if a.AppID == "" {
			errs = append(errs, errors.New("automower.app_id is required"))
		}
		if a.Username == "" || a.Password == "" {
			errs = append(errs, errors.New("automower.username and automower.password are required"))
		}
		if a.MowerName == "" {
			errs = append(errs, errors.New("automower.mower_name is required"))
		}
		if a.PollInterval <= 0 {
			errs = append(errs, errors.New("automower.poll_interval must be positive"))
		}
	}

	if m := &c.Mail; m.Enabled {
		unique("mail", m.Name)
		if m.SMTP.Host == "" {
			errs = append(errs, errors.New("mail.smtp.host is required"))
		}
		if m.SMTP.From == "" {
			errs = append(errs, errors.New("mail.smtp.from is required"))
		}
		enc, err := mail.ParseEncryption(string(m.SMTP.Encryption))
		if err != nil {
			errs = append(errs, err)
		}
		m.SMTP.Encryption = enc
		if m.Retries < 1 {
			errs = append(errs, errors.New("mail.retries must be at least 1"))
		}
	}

	if t := c.Telegram; t.Enabled {
		unique("telegram", t.Name)
		if t.BotToken == "" || t.ChatID == "" {
			errs = append(errs, errors.New("telegram.bot_token and telegram.chat_id are required"))
		}
		if t.Retries < 1 {
			errs = append(errs, errors.New("telegram.retries must be at least 1"))
		}
	}

	if t := c.Thermostat; t.Enabled {
		unique("thermostat", t.Name)
		if !t.SimulateValve && t.Valve.Line < 0 {
			errs = append(errs, errors.New("thermostat.valve.line must not be negative"))
		}
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for -print-config.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&out.MQTT.Password)
	mask(&out.Automower.Password)
	mask(&out.Mail.SMTP.Password)
	mask(&out.Telegram.BotToken)
	return &out
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
