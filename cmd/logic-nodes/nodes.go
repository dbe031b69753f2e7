package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/automower"
	"github.com/teclab-at/logic-nodes/internal/config"
	"github.com/teclab-at/logic-nodes/internal/gpio"
	"github.com/teclab-at/logic-nodes/internal/logger"
	"github.com/teclab-at/logic-nodes/internal/mail"
	"github.com/teclab-at/logic-nodes/internal/metrics"
	"github.com/teclab-at/logic-nodes/internal/node"
	"github.com/teclab-at/logic-nodes/internal/status"
	"github.com/teclab-at/logic-nodes/internal/telegram"
	"github.com/teclab-at/logic-nodes/internal/thermostat"
	"github.com/teclab-at/logic-nodes/internal/web"
)

// valveOpener opens the thermostat relay line.
type valveOpener func(gpio.Config) (gpio.Valve, error)

func openRealValve(cfg gpio.Config) (gpio.Valve, error) {
	v, err := gpio.NewRealValve(cfg)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// nodes holds the enabled nodes. Disabled ones stay nil.
type nodes struct {
	mower      *automower.Node
	mail       *mail.Node
	telegram   *telegram.Node
	thermostat *thermostat.Node
}

func buildNodes(cfg *config.Config, sink node.Sink, m *metrics.Metrics, openValve valveOpener) (*nodes, error) {
	n := &nodes{}

	if a := cfg.Automower; a.Enabled {
		n.mower = automower.NewNode(automower.NodeConfig{
			Name:      a.Name,
			AppID:     a.AppID,
			Username:  a.Username,
			Password:  a.Password,
			MowerName: a.MowerName,
			AuthURL:   a.AuthURL,
			MowersURL: a.MowersURL,
			Timeout:   a.Timeout,
			Sink:      sink,
			Logger:    logger.ForNode(a.Name, a.Verbose),
			Metrics:   m,
		})
	}

	if c := cfg.Mail; c.Enabled {
		n.mail = mail.NewNode(mail.NodeConfig{
			Name:       c.Name,
			SMTP:       c.SMTP,
			Retries:    c.Retries,
			RetryDelay: c.RetryDelay,
			Sink:       sink,
			Logger:     logger.ForNode(c.Name, c.Verbose),
			Metrics:    m,
		})
	}

	if c := cfg.Telegram; c.Enabled {
		n.telegram = telegram.NewNode(telegram.NodeConfig{
			Name: c.Name,
			API: telegram.Config{
				BaseURL:    c.BaseURL,
				BotToken:   c.BotToken,
				ChatID:     c.ChatID,
				HTTPClient: &http.Client{Timeout: c.Timeout},
			},
			Retries:    c.Retries,
			RetryDelay: c.RetryDelay,
			Sink:       sink,
			Logger:     logger.ForNode(c.Name, c.Verbose),
			Metrics:    m,
		})
	}

	if c := cfg.Thermostat; c.Enabled {
		tc := thermostat.NodeConfig{
			Name:   c.Name,
			Sink:   sink,
			Logger: logger.ForNode(c.Name, c.Verbose),
		}
		if !c.SimulateValve {
			v, err := openValve(c.Valve)
			if err != nil {
				return nil, fmt.Errorf("open thermostat valve: %w", err)
			}
			tc.Valve = v
		}
		if c.StorePath != "" {
			tc.Store = thermostat.NewFileStore(c.StorePath)
		}
		th, err := thermostat.NewNode(tc)
		if err != nil {
			if tc.Valve != nil {
				tc.Valve.Close()
			}
			return nil, fmt.Errorf("init thermostat: %w", err)
		}
		n.thermostat = th
	}

	return n, nil
}

// sources lists the node contexts for the status tracker.
func (n *nodes) sources() []status.NodeSource {
	var out []status.NodeSource
	if n.mower != nil {
		out = append(out, n.mower.State())
	}
	if n.mail != nil {
		out = append(out, n.mail.State())
	}
	if n.telegram != nil {
		out = append(out, n.telegram.State())
	}
	if n.thermostat != nil {
		out = append(out, n.thermostat.State())
	}
	return out
}

// webOptions fills the node endpoints of o. Interface fields are only set
// for enabled nodes so disabled endpoints see a nil interface.
func (n *nodes) webOptions(o web.Options) web.Options {
	o.Triggers = map[string]web.Triggerer{}
	if n.mower != nil {
		o.Triggers[n.mower.State().Name()] = n.mower
	}
	if n.mail != nil {
		o.Mail = n.mail
	}
	if n.telegram != nil {
		o.Telegram = n.telegram
	}
	if n.thermostat != nil {
		o.Thermostat = n.thermostat
	}
	return o
}

// wait blocks until running polls and delivery jobs finish or timeout
// passes. It reports whether everything finished.
func (n *nodes) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if n.mower != nil {
			n.mower.Wait()
		}
		if n.mail != nil {
			n.mail.Wait()
		}
		if n.telegram != nil {
			n.telegram.Wait()
		}
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (n *nodes) close(log zerolog.Logger) {
	if n.thermostat != nil {
		if err := n.thermostat.Close(); err != nil {
			log.Error().Err(err).Msg("close thermostat valve")
		}
	}
}
