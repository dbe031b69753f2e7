package thermostat

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/gpio"
	"github.com/teclab-at/logic-nodes/internal/node"
)

// Output names of the thermostat node.
const (
	OutputValve  = "Valve"
	OutputStored = "StoTemp"
)

// NodeConfig configures a thermostat node.
type NodeConfig struct {
	Name string
	// Valve, if set, is driven with every valve decision.
	Valve gpio.Valve
	// Store, if set, persists the stored setpoint.
	Store  Store
	Sink   node.Sink
	Logger zerolog.Logger
}

// Node runs a Controller for host input writes.
type Node struct {
	state *node.Context
	valve gpio.Valve
	store Store
	log   zerolog.Logger

	// mu orders controller updates and valve writes.
	mu   sync.Mutex
	ctrl *Controller
}

// NewNode creates a thermostat node and restores the stored setpoint.
func NewNode(cfg NodeConfig) (*Node, error) {
	n := &Node{
		state: node.New(node.Config{Name: cfg.Name, Sink: cfg.Sink}),
		valve: cfg.Valve,
		store: cfg.Store,
		log:   cfg.Logger,
		ctrl:  NewController(),
	}

	if n.store != nil {
		v, ok, err := n.store.Load()
		if err != nil {
			return nil, fmt.Errorf("restore setpoint: %w", err)
		}
		if ok {
			n.ctrl.Restore(v)
			n.state.Apply(node.Number(OutputStored, v))
			n.log.Info().Float64("setpoint", v).Msg("restored stored setpoint")
		}
	}
	return n, nil
}

// State returns the node context.
func (n *Node) State() *node.Context {
	return n.state
}

// Update applies input writes. Outputs change once every input has been
// written at least once.
func (n *Node) Update(u Update) (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	res, ok := n.ctrl.Apply(u)
	if !ok {
		n.log.Debug().Msg("waiting for all inputs")
		return Result{}, nil
	}

	n.state.Apply(
		node.Bool(OutputValve, res.Valve),
		node.Number(OutputStored, res.Stored),
	)

	var errs []error
	if n.valve != nil {
		if err := n.valve.Set(res.Valve); err != nil {
			errs = append(errs, fmt.Errorf("drive valve: %w", err))
		}
	}
	if res.StoredChanged && n.store != nil {
		if err := n.store.Save(res.Stored); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		n.state.SignalError(errs[0].Error())
		n.log.Error().Errs("errors", errs).Msg("thermostat update failed")
		return res, errs[0]
	}
	n.state.ClearError()
	n.log.Debug().Bool("valve", res.Valve).Float64("stored", res.Stored).Msg("thermostat updated")
	return res, nil
}

// Close closes the valve actuator.
func (n *Node) Close() error {
	if n.valve == nil {
		return nil
	}
	return n.valve.Close()
}
