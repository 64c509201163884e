// Package arbiter decides, once per animation tick, which tracking source
// drives the puppet.
package arbiter

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-puppet/pkg/landmarks"
)

// State is the arbitration outcome.
type State int

const (
	// Unbound means no observation has ever arrived.
	Unbound State = iota
	// NetworkAuthoritative means the network tracker is fresh and drives output.
	NetworkAuthoritative
	// LocalAuthoritative means the network is stale and the local sensor is fresh.
	LocalAuthoritative
	// Suspended means every source is stale; output freezes.
	Suspended
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case NetworkAuthoritative:
		return "network"
	case LocalAuthoritative:
		return "local"
	case Suspended:
		return "suspended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Unbound, NetworkAuthoritative, LocalAuthoritative, Suspended} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("arbiter: unknown state %q", b)
}

// Decision is the result of one arbitration.
type Decision struct {
	State State

	// Observation is the authoritative observation, nil when Suspended or
	// Unbound. Callers must treat it as read-only.
	Observation *landmarks.Observation
}

// Arbiter holds the latest observation per source and picks the
// authoritative one. Observe may be called from any goroutine; each source
// has a single slot and the newest write wins.
type Arbiter struct {
	network atomic.Pointer[landmarks.Observation]
	local   atomic.Pointer[landmarks.Observation]

	logger *slog.Logger

	mu     sync.RWMutex
	config Config
	state  State
}

// New creates an Arbiter. A nil logger uses slog.Default().
func New(config Config, logger *slog.Logger) (*Arbiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		config: config,
		logger: logger.With("component", "arbiter"),
	}, nil
}

// Observe replaces the slot for obs.Source. Unknown sources are ignored.
func (a *Arbiter) Observe(obs landmarks.Observation) {
	slot := a.slot(obs.Source)
	if slot == nil {
		a.logger.Debug("observation from unknown source ignored", "source", obs.Source)
		return
	}
	slot.Store(&obs)
}

// Arbitrate evaluates the sources at now.
func (a *Arbiter) Arbitrate(now time.Time) Decision {
	a.mu.RLock()
	cfg := a.config
	a.mu.RUnlock()

	net := a.network.Load()
	loc := a.local.Load()

	var d Decision
	switch {
	case net != nil && net.Age(now) < cfg.StaleTimeout:
		d = Decision{State: NetworkAuthoritative, Observation: net}
	case loc != nil && loc.Age(now) < cfg.LocalStaleTimeout:
		d = Decision{State: LocalAuthoritative, Observation: loc}
	case net == nil && loc == nil:
		d = Decision{State: Unbound}
	default:
		d = Decision{State: Suspended}
	}

	a.transition(d.State)
	return d
}

func (a *Arbiter) transition(next State) {
	a.mu.Lock()
	prev := a.state
	a.state = next
	a.mu.Unlock()

	if prev != next {
		a.logger.Info("tracking source changed", "from", prev, "to", next)
	}
}

// State returns the outcome of the most recent Arbitrate call.
func (a *Arbiter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Latest returns the current observation for source, or nil.
func (a *Arbiter) Latest(source landmarks.SourceID) *landmarks.Observation {
	slot := a.slot(source)
	if slot == nil {
		return nil
	}
	return slot.Load()
}

// Age reports how old the latest observation for source is at now. ok is
// false when the source never produced one.
func (a *Arbiter) Age(source landmarks.SourceID, now time.Time) (age time.Duration, ok bool) {
	obs := a.Latest(source)
	if obs == nil {
		return 0, false
	}
	return obs.Age(now), true
}

// Config returns the current freshness windows.
func (a *Arbiter) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// SetConfig replaces the freshness windows at runtime.
func (a *Arbiter) SetConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.config = config
	a.mu.Unlock()
	a.logger.Info("freshness windows updated",
		"stale_timeout", config.StaleTimeout,
		"local_stale_timeout", config.LocalStaleTimeout)
	return nil
}

func (a *Arbiter) slot(source landmarks.SourceID) *atomic.Pointer[landmarks.Observation] {
	switch source {
	case landmarks.Network:
		return &a.network
	case landmarks.Local:
		return &a.local
	default:
		return nil
	}
}
