package puppet

import (
	"time"

	"github.com/teslashibe/go-puppet/pkg/arbiter"
	"github.com/teslashibe/go-puppet/pkg/features"
	"github.com/teslashibe/go-puppet/pkg/landmarks"
)

// Status labels shown to the user.
const (
	LabelNetwork = "network active"
	LabelLocal   = "local fallback"
	LabelNone    = "no tracking"
	LabelWaiting = "waiting"
)

// Network quality values.
const (
	QualityGood = "good"
	QualityLost = "lost"
)

// Status describes what is driving the puppet right now.
type Status struct {
	SessionID string        `json:"sessionId"`
	State     arbiter.State `json:"state"`
	Label     string        `json:"label"`
	Mode      string        `json:"mode"` // "live" or "demo"

	// NetworkQuality is set while the network source is authoritative:
	// "lost" when the tracker reports it lost the face.
	NetworkQuality string `json:"networkQuality,omitempty"`

	// Euler is the network tracker's head rotation, exactly as received.
	Euler *landmarks.Euler `json:"euler,omitempty"`

	// Geometric is the unsmoothed frame extracted from the authoritative
	// landmarks, present even when Euler angles drive the head.
	Geometric *features.Frame `json:"geometric,omitempty"`

	NetworkAgeMs *int64 `json:"networkAgeMs,omitempty"`
	LocalAgeMs   *int64 `json:"localAgeMs,omitempty"`

	NetworkFrames uint64 `json:"networkFrames"`
	LocalFrames   uint64 `json:"localFrames"`
	Ticks         uint64 `json:"ticks"`
}

// Label returns the user-facing label for an arbitration state.
func Label(s arbiter.State) string {
	switch s {
	case arbiter.NetworkAuthoritative:
		return LabelNetwork
	case arbiter.LocalAuthoritative:
		return LabelLocal
	case arbiter.Suspended:
		return LabelNone
	default:
		return LabelWaiting
	}
}

// Status reports the outcome of the latest tick.
func (p *Pipeline) Status() Status {
	return p.statusAt(p.clock.Now())
}

func (p *Pipeline) statusAt(now time.Time) Status {
	ev := p.live.lastEvaluation()

	st := Status{
		SessionID:     p.sessionID,
		State:         ev.decision.State,
		Label:         Label(ev.decision.State),
		Mode:          p.mode(),
		Geometric:     ev.geometric,
		NetworkAgeMs:  p.ageMs(landmarks.Network, now),
		LocalAgeMs:    p.ageMs(landmarks.Local, now),
		NetworkFrames: p.offered[landmarks.Network].Load(),
		LocalFrames:   p.offered[landmarks.Local].Load(),
		Ticks:         p.ticks.Load(),
	}

	if obs := ev.decision.Observation; ev.decision.State == arbiter.NetworkAuthoritative && obs != nil {
		st.NetworkQuality = QualityGood
		if !obs.QualityOK {
			st.NetworkQuality = QualityLost
		}
		if obs.Euler != nil {
			e := *obs.Euler
			st.Euler = &e
		}
	}
	return st
}

func (p *Pipeline) mode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.demo != nil {
		return "demo"
	}
	return "live"
}

func (p *Pipeline) ageMs(source landmarks.SourceID, now time.Time) *int64 {
	age, ok := p.arbiter.Age(source, now)
	if !ok {
		return nil
	}
	ms := age.Milliseconds()
	return &ms
}
