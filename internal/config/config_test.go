package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teclab-at/logic-nodes/internal/automower"
	"github.com/teclab-at/logic-nodes/internal/delivery"
	"github.com/teclab-at/logic-nodes/internal/mail"
)

const fullConfig = `
log:
  level: debug
  file: /var/log/logic-nodes.log
http:
  addr: ":9090"
mqtt:
  enabled: true
  broker: tcp://broker:1883
automower:
  enabled: true
  app_id: app-123
  username: owner@example.com
  password: ${TEST_MOWER_PASSWORD}
  mower_name: Garden
  poll_interval: 2m
mail:
  enabled: true
  smtp:
    host: smtp.example.com
    port: 465
    encryption: SSL
    from: x1@example.com
  retry_delay: 5s
telegram:
  enabled: true
  bot_token: ${TEST_BOT_TOKEN}
  chat_id: "42"
  retries: 3
thermostat:
  enabled: true
  simulate_valve: true
  store_path: /var/lib/logic-nodes/setpoint.yaml
`

func TestParseFull(t *testing.T) {
	t.Setenv("TEST_MOWER_PASSWORD", "s3cret")
	t.Setenv("TEST_BOT_TOKEN", "123:abc")

	cfg, err := Parse(strings.NewReader(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.NATS.Enabled)

	a := cfg.Automower
	assert.Equal(t, "s3cret", a.Password)
	assert.Equal(t, 2*time.Minute, a.PollInterval)
	assert.Equal(t, "mower", a.Name)
	assert.Equal(t, automower.DefaultAuthURL, a.AuthURL)
	assert.Equal(t, automower.DefaultTimeout, a.Timeout)

	m := cfg.Mail
	assert.Equal(t, mail.EncryptionSSL, m.SMTP.Encryption)
	assert.Equal(t, 465, m.SMTP.Port)
	assert.Equal(t, mail.DefaultFromName, m.SMTP.FromName)
	assert.Equal(t, delivery.DefaultMaxAttempts, m.Retries)
	assert.Equal(t, 5*time.Second, m.RetryDelay)

	tg := cfg.Telegram
	assert.Equal(t, "123:abc", tg.BotToken)
	assert.Equal(t, "42", tg.ChatID)
	assert.Equal(t, 3, tg.Retries)
	assert.Equal(t, delivery.DefaultRetryDelay, tg.RetryDelay)

	assert.True(t, cfg.Thermostat.SimulateValve)
	assert.Equal(t, "gpiochip0", cfg.Thermostat.Valve.Chip)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("automower:\n  mowername: Garden\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mowername")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "automower missing credentials",
			mutate: func(c *Config) {
				c.Automower.Enabled = true
				c.Automower.AppID = "app"
			},
			want: []string{"automower.username", "automower.mower_name"},
		},
		{
			name: "mail bad encryption",
			mutate: func(c *Config) {
				c.Mail.Enabled = true
				c.Mail.SMTP.Host = "smtp"
				c.Mail.SMTP.From = "a@b"
				c.Mail.SMTP.Encryption = "rot13"
			},
			want: []string{`unknown encryption "rot13"`},
		},
		{
			name: "telegram zero retries",
			mutate: func(c *Config) {
				c.Telegram.Enabled = true
				c.Telegram.BotToken = "t"
				c.Telegram.ChatID = "1"
				c.Telegram.Retries = 0
			},
			want: []string{"telegram.retries"},
		},
		{
			name: "duplicate node names",
			mutate: func(c *Config) {
				c.Thermostat.Enabled = true
				c.Telegram.Enabled = true
				c.Telegram.BotToken = "t"
				c.Telegram.ChatID = "1"
				c.Thermostat.Name = "telegram"
			},
			want: []string{`thermostat.name "telegram" already used by telegram`},
		},
		{
			name: "mqtt without broker",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = ""
			},
			want: []string{"mqtt.broker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \"\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTP.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Automower.Password = "pw"
	cfg.Telegram.BotToken = "token"

	r := cfg.Redacted()
	assert.Equal(t, "********", r.Automower.Password)
	assert.Equal(t, "********", r.Telegram.BotToken)
	assert.Empty(t, r.Mail.SMTP.Password)
	assert.Equal(t, "pw", cfg.Automower.Password, "source config must not change")

	out, err := r.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "bot_token: token")
	assert.Contains(t, string(out), "poll_interval: 5m0s")
}
