package puppet

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-puppet/pkg/smoothing"
)

// MaxTimeoutMs bounds the freshness windows accepted by the tuning API.
const MaxTimeoutMs = int64(time.Hour / time.Millisecond)

// TuningParams holds the real-time adjustable pipeline parameters.
// These can be modified via the tuning API without restarting.
type TuningParams struct {
	Smoothness          float64 `json:"smoothness"`             // 0 = snap, 1 = crawl
	DemoMode            bool    `json:"demo_mode"`              // Synthetic face instead of tracking
	StaleTimeoutMs      int64   `json:"stale_timeout_ms"`       // Network freshness window
	LocalStaleTimeoutMs int64   `json:"local_stale_timeout_ms"` // Local freshness window
	HeadPoseSource      string  `json:"head_pose_source"`       // "geometry" or "network"
}

// TuningUpdate is a partial update; nil fields are left unchanged.
type TuningUpdate struct {
	Smoothness          *float64 `json:"smoothness,omitempty"`
	DemoMode            *bool    `json:"demo_mode,omitempty"`
	StaleTimeoutMs      *int64   `json:"stale_timeout_ms,omitempty"`
	LocalStaleTimeoutMs *int64   `json:"local_stale_timeout_ms,omitempty"`
	HeadPoseSource      *string  `json:"head_pose_source,omitempty"`
}

// GetTuningParams returns the current tuning parameters.
func (p *Pipeline) GetTuningParams() TuningParams {
	arb := p.arbiter.Config()

	p.live.mu.RLock()
	smoothness := p.live.smoothness
	headPose := p.live.headPose
	p.live.mu.RUnlock()

	return TuningParams{
		Smoothness:          smoothness,
		DemoMode:            p.mode() == "demo",
		StaleTimeoutMs:      arb.StaleTimeout.Milliseconds(),
		LocalStaleTimeoutMs: arb.LocalStaleTimeout.Milliseconds(),
		HeadPoseSource:      string(headPose),
	}
}

// SetTuningParams validates and applies u. Nothing is applied if any field
// is invalid.
func (p *Pipeline) SetTuningParams(u TuningUpdate) error {
	if u.Smoothness != nil && (*u.Smoothness < 0 || *u.Smoothness > 1) {
		return fmt.Errorf("%w: smoothness must be in [0,1], got %v", ErrInvalidConfig, *u.Smoothness)
	}
	var headPose HeadPoseSource
	if u.HeadPoseSource != nil {
		hp, err := ParseHeadPoseSource(*u.HeadPoseSource)
		if err != nil {
			return err
		}
		headPose = hp
	}

	for _, ms := range []*int64{u.StaleTimeoutMs, u.LocalStaleTimeoutMs} {
		if ms != nil && (*ms <= 0 || *ms > MaxTimeoutMs) {
			return fmt.Errorf("%w: timeout must be in (0,%d] ms, got %d", ErrInvalidConfig, MaxTimeoutMs, *ms)
		}
	}

	arb := p.arbiter.Config()
	if u.StaleTimeoutMs != nil {
		arb.StaleTimeout = time.Duration(*u.StaleTimeoutMs) * time.Millisecond
	}
	if u.LocalStaleTimeoutMs != nil {
		arb.LocalStaleTimeout = time.Duration(*u.LocalStaleTimeoutMs) * time.Millisecond
	}
	if err := arb.Validate(); err != nil {
		return err
	}

	if u.StaleTimeoutMs != nil || u.LocalStaleTimeoutMs != nil {
		if err := p.arbiter.SetConfig(arb); err != nil {
			return err
		}
	}

	p.live.mu.Lock()
	if u.Smoothness != nil {
		p.live.smoothness = *u.Smoothness
	}
	if headPose != "" {
		p.live.headPose = headPose
	}
	p.live.mu.Unlock()

	if u.DemoMode != nil {
		p.SetDemo(*u.DemoMode)
	}

	p.logger.Info("tuning updated", "params", p.GetTuningParams())
	return nil
}

// SetDemo switches between the synthetic generator and live tracking. The
// animation state carries over, so the puppet blends into the new input.
func (p *Pipeline) SetDemo(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case enabled && p.demo == nil:
		p.demo = smoothing.NewDemo(p.clock.Now())
	case !enabled:
		p.demo = nil
	}
}
