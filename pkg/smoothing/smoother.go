// Package smoothing turns per-tick feature frames into a continuously
// animated puppet state.
package smoothing

import (
	"sync"
	"time"

	"github.com/teslashibe/go-puppet/pkg/features"
)

// AnimationState is the smoothed pose handed to renderers.
type AnimationState struct {
	Blink     float64 `json:"blink"`
	Smile     float64 `json:"smile"`
	MouthOpen float64 `json:"mouth_open"`
	Yaw       float64 `json:"yaw"`
	Pitch     float64 `json:"pitch"`
	Roll      float64 `json:"roll"`

	// Head aliases of yaw, pitch and roll for renderers that position
	// the head sprite directly.
	HeadX        float64 `json:"head_x"`
	HeadY        float64 `json:"head_y"`
	HeadRotation float64 `json:"head_rotation"`
}

// TargetProvider supplies the frame the smoother blends toward.
type TargetProvider interface {
	// Target returns the frame for now. ok is false when there is nothing
	// to follow and the state must hold.
	Target(now time.Time) (frame features.Frame, ok bool)

	// LerpRate is the per-tick blend fraction in (0, 1].
	LerpRate() float64
}

// LerpRate converts the user-facing smoothness knob into a blend fraction:
// 0 snaps instantly, 1 crawls at 10% per tick.
func LerpRate(smoothness float64) float64 {
	return 1 - clamp01(smoothness)*0.9
}

// Smoother owns the single AnimationState of a session. Tick and Advance
// must be called from one goroutine; State may be called from any.
type Smoother struct {
	mu    sync.RWMutex
	state AnimationState
}

// New returns a Smoother at the neutral pose.
func New() *Smoother {
	return &Smoother{}
}

// Tick blends toward target with the given smoothness. A nil target
// leaves the state untouched.
func (s *Smoother) Tick(target *features.Frame, smoothness float64) AnimationState {
	return s.blend(target, LerpRate(smoothness))
}

// Advance pulls one target from p and blends toward it.
func (s *Smoother) Advance(p TargetProvider, now time.Time) AnimationState {
	frame, ok := p.Target(now)
	if !ok {
		return s.blend(nil, 0)
	}
	return s.blend(&frame, p.LerpRate())
}

// State returns a snapshot of the current pose.
func (s *Smoother) State() AnimationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Smoother) blend(target *features.Frame, lerp float64) AnimationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target == nil {
		return s.state
	}

	st := &s.state
	st.Blink += (target.Blink - st.Blink) * lerp
	st.Smile += (target.Smile - st.Smile) * lerp
	st.MouthOpen += (target.MouthOpen - st.MouthOpen) * lerp
	st.Yaw += (target.Yaw - st.Yaw) * lerp
	st.Pitch += (target.Pitch - st.Pitch) * lerp
	st.Roll += (target.Roll - st.Roll) * lerp

	st.HeadX = st.Yaw
	st.HeadY = st.Pitch
	st.HeadRotation = st.Roll
	return s.state
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
