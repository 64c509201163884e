package puppet

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-puppet/internal/log"
	"github.com/teslashibe/go-puppet/internal/timeutil"
	"github.com/teslashibe/go-puppet/pkg/arbiter"
	"github.com/teslashibe/go-puppet/pkg/features"
	"github.com/teslashibe/go-puppet/pkg/landmarks"
	"github.com/teslashibe/go-puppet/pkg/protocol"
	"github.com/teslashibe/go-puppet/pkg/smoothing"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// face returns a frontal face in 1920x1080 pixels with the nose shifted
// right by noseShift pixels.
func face(noseShift float64) landmarks.Set {
	var s landmarks.Set
	for i := range s {
		s[i] = landmarks.Point2D{X: 960, Y: 400 + float64(i)}
	}
	set := func(i int, x, y float64) { s[i] = landmarks.Point2D{X: x, Y: y} }

	set(36, 800, 500)
	set(37, 826, 490)
	set(38, 854, 490)
	set(39, 880, 500)
	set(40, 854, 510)
	set(41, 826, 510)
	set(42, 1040, 500)
	set(43, 1066, 490)
	set(44, 1094, 490)
	set(45, 1120, 500)
	set(46, 1094, 510)
	set(47, 1066, 510)
	set(27, 960, 500)
	set(30, 960+noseShift, 580)
	set(8, 960, 780)
	set(48, 900, 660)
	set(54, 1020, 660)
	set(51, 960, 650)
	set(57, 960, 670)
	set(62, 960, 655)
	set(66, 960, 665)
	return s
}

func raw(source landmarks.SourceID, s landmarks.Set) landmarks.Raw {
	return landmarks.Raw{
		Source:    source,
		Topology:  landmarks.IBUG68,
		Points:    s[:],
		Width:     1920,
		Height:    1080,
		QualityOK: true,
	}
}

func newPipeline(t *testing.T, mutate func(*Config)) (*Pipeline, *timeutil.MockClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Smoothness = 0
	if mutate != nil {
		mutate(&cfg)
	}
	clock := timeutil.NewMockClock(start)
	p, err := New(cfg, clock, log.Discard())
	require.NoError(t, err)
	return p, clock
}

func TestPipeline_Unbound(t *testing.T) {
	p, clock := newPipeline(t, nil)

	state := p.Tick(clock.Now())

	assert.Equal(t, smoothing.AnimationState{}, state)
	st := p.Status()
	assert.Equal(t, arbiter.Unbound, st.State)
	assert.Equal(t, LabelWaiting, st.Label)
	assert.Equal(t, "live", st.Mode)
	assert.Nil(t, st.NetworkAgeMs)
	assert.NotEmpty(t, st.SessionID)
}

func TestPipeline_NetworkDrivesState(t *testing.T) {
	p, clock := newPipeline(t, nil)
	s := face(40)
	want := features.Extract(s)

	p.Offer(raw(landmarks.Network, s))
	clock.Advance(16 * time.Millisecond)
	state := p.Tick(clock.Now())

	assert.InDelta(t, want.Blink, state.Blink, 1e-9)
	assert.InDelta(t, want.Smile, state.Smile, 1e-9)
	assert.InDelta(t, want.MouthOpen, state.MouthOpen, 1e-9)
	assert.InDelta(t, want.Yaw, state.Yaw, 1e-9)
	assert.InDelta(t, want.Pitch, state.Pitch, 1e-9)
	assert.Equal(t, state.Yaw, state.HeadX)

	st := p.Status()
	assert.Equal(t, arbiter.NetworkAuthoritative, st.State)
	assert.Equal(t, LabelNetwork, st.Label)
	assert.Equal(t, QualityGood, st.NetworkQuality)
	require.NotNil(t, st.NetworkAgeMs)
	assert.Equal(t, int64(16), *st.NetworkAgeMs)
	assert.Equal(t, uint64(1), st.NetworkFrames)
	assert.Equal(t, uint64(1), st.Ticks)
}

func TestPipeline_NormalizesIntoTargetFrame(t *testing.T) {
	p, clock := newPipeline(t, nil)
	s := face(40)

	// Same face delivered at half resolution must extract identically.
	half := make([]landmarks.Point2D, landmarks.Count)
	for i, pt := range s {
		half[i] = pt.Scale(0.5, 0.5)
	}
	p.Offer(landmarks.Raw{Source: landmarks.Network, Topology: landmarks.IBUG68, Points: half, Width: 960, Height: 540, QualityOK: true})
	state := p.Tick(clock.Now())

	assert.InDelta(t, features.Extract(s).Yaw, state.Yaw, 1e-9)
}

func TestPipeline_FailoverToLocal(t *testing.T) {
	p, clock := newPipeline(t, nil)

	p.Offer(raw(landmarks.Network, face(40)))
	clock.Advance(300 * time.Millisecond)
	p.Offer(raw(landmarks.Local, face(-40)))

	// network 499ms old: still authoritative
	clock.Advance(199 * time.Millisecond)
	state := p.Tick(clock.Now())
	assert.Equal(t, arbiter.NetworkAuthoritative, p.Status().State)
	assert.Greater(t, state.Yaw, 0.0)

	// network 501ms old: local takes over
	clock.Advance(2 * time.Millisecond)
	state = p.Tick(clock.Now())
	st := p.Status()
	assert.Equal(t, arbiter.LocalAuthoritative, st.State)
	assert.Equal(t, LabelLocal, st.Label)
	assert.Empty(t, st.NetworkQuality)
	assert.Less(t, state.Yaw, 0.0)
}

func TestPipeline_SuspendedFreezes(t *testing.T) {
	p, clock := newPipeline(t, func(c *Config) { c.Smoothness = 0.7 })

	p.Offer(raw(landmarks.Network, face(40)))
	for i := 0; i < 5; i++ {
		clock.Advance(16 * time.Millisecond)
		p.Tick(clock.Now())
	}
	clock.Advance(time.Second)
	frozen := p.Tick(clock.Now())
	require.Equal(t, arbiter.Suspended, p.Status().State)
	assert.Equal(t, LabelNone, p.Status().Label)

	for i := 0; i < 10; i++ {
		clock.Advance(16 * time.Millisecond)
		assert.Equal(t, frozen, p.Tick(clock.Now()), "tick %d", i)
	}
	assert.Equal(t, frozen, p.State())
}

func TestPipeline_QualityLost(t *testing.T) {
	p, clock := newPipeline(t, nil)

	r := raw(landmarks.Network, face(0))
	r.QualityOK = false
	p.Offer(r)
	p.Offer(raw(landmarks.Local, face(0)))
	p.Tick(clock.Now())

	st := p.Status()
	assert.Equal(t, arbiter.NetworkAuthoritative, st.State)
	assert.Equal(t, QualityLost, st.NetworkQuality)
}

func TestPipeline_EulerSurfacedExactly(t *testing.T) {
	p, clock := newPipeline(t, nil)
	s := face(40)
	geo := features.Extract(s)

	r := raw(landmarks.Network, s)
	r.Euler = &landmarks.Euler{10, -5, 2}
	p.Offer(r)
	state := p.Tick(clock.Now())

	st := p.Status()
	require.NotNil(t, st.Euler)
	assert.Equal(t, landmarks.Euler{10, -5, 2}, *st.Euler)
	assert.Equal(t, 10.0, st.Euler.Pitch())
	assert.Equal(t, -5.0, st.Euler.Yaw())
	assert.Equal(t, 2.0, st.Euler.Roll())

	// Geometry stays authoritative for the animated head by default.
	require.NotNil(t, st.Geometric)
	assert.InDelta(t, geo.Yaw, st.Geometric.Yaw, 1e-9)
	assert.InDelta(t, geo.Yaw, state.Yaw, 1e-9)
	assert.InDelta(t, geo.Roll, state.Roll, 1e-9)

	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"euler":[10,-5,2]`)
	assert.Contains(t, string(b), `"state":"network"`)
}

func TestPipeline_EulerHeadPoseOverride(t *testing.T) {
	p, clock := newPipeline(t, func(c *Config) { c.HeadPoseSource = HeadPoseNetwork })
	s := face(40)

	r := raw(landmarks.Network, s)
	r.Euler = &landmarks.Euler{10, -5, 2}
	p.Offer(r)
	state := p.Tick(clock.Now())

	assert.InDelta(t, -5.0/30, state.Yaw, 1e-9)
	assert.InDelta(t, 10.0/30, state.Pitch, 1e-9)
	assert.InDelta(t, 2*math.Pi/180, state.Roll, 1e-9)
	// Expression channels still come from landmarks.
	assert.InDelta(t, features.Extract(s).Blink, state.Blink, 1e-9)

	// Without Euler angles geometry is the fallback.
	clock.Advance(16 * time.Millisecond)
	p.Offer(raw(landmarks.Network, s))
	state = p.Tick(clock.Now())
	assert.InDelta(t, features.Extract(s).Yaw, state.Yaw, 1e-9)
}

func TestPipeline_NonFiniteEulerFallsBackToGeometry(t *testing.T) {
	p, clock := newPipeline(t, func(c *Config) { c.HeadPoseSource = HeadPoseNetwork })
	s := face(40)

	d := &protocol.TrackingData{Width: 1920, Height: 1080, Success: true}
	euler := [3]float64{math.NaN(), 5, math.Inf(1)}
	d.Euler = &euler
	for _, pt := range s {
		d.Landmarks = append(d.Landmarks, protocol.TrackedPoint{X: pt.X, Y: pt.Y, Confidence: 1})
	}
	decoded, err := protocol.DecodeOpenSeeFace(protocol.EncodeOpenSeeFace(d))
	require.NoError(t, err)

	r := decoded.ToRaw()
	r.Euler = &landmarks.Euler{math.NaN(), 5, math.Inf(1)}
	p.Offer(r)
	state := p.Tick(clock.Now())

	st := p.Status()
	assert.Equal(t, arbiter.NetworkAuthoritative, st.State)
	assert.Nil(t, st.Euler)
	assert.InDelta(t, features.Extract(s).Yaw, state.Yaw, 1e-9)

	_, err = json.Marshal(st)
	require.NoError(t, err)
	_, err = json.Marshal(state)
	require.NoError(t, err)
}

func TestEulerHeadPose_Clamps(t *testing.T) {
	yaw, pitch, roll := eulerHeadPose(landmarks.Euler{-90, 45, math.NaN()}, 30)
	assert.Equal(t, 1.0, yaw)
	assert.Equal(t, -1.0, pitch)
	assert.Equal(t, 0.0, roll)
}

func TestPipeline_DemoMode(t *testing.T) {
	p, clock := newPipeline(t, func(c *Config) { c.Demo = true })
	p.Offer(raw(landmarks.Local, face(0)))

	var state smoothing.AnimationState
	for i := 0; i < 30; i++ {
		clock.Advance(16 * time.Millisecond)
		state = p.Tick(clock.Now())
	}

	st := p.Status()
	assert.Equal(t, "demo", st.Mode)
	assert.Equal(t, arbiter.LocalAuthoritative, st.State)
	assert.NotZero(t, state.Blink)
	assert.NotZero(t, state.Smile)
	assert.LessOrEqual(t, math.Abs(state.Yaw), 0.3)
}

func TestPipeline_Run(t *testing.T) {
	p, clock := newPipeline(t, nil)
	p.Offer(raw(landmarks.Network, face(0)))

	rendered := make(chan Status, 16)
	p.AddRenderer(RendererFunc(func(_ smoothing.AnimationState, st Status) {
		select {
		case rendered <- st:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	var got *Status
	for i := 0; i < 200 && got == nil; i++ {
		clock.Advance(p.interval)
		select {
		case st := <-rendered:
			got = &st
		case <-time.After(5 * time.Millisecond):
		}
	}
	require.NotNil(t, got, "renderer never called")
	assert.Equal(t, LabelNetwork, got.Label)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestPipeline_StepTo(t *testing.T) {
	p, clock := newPipeline(t, func(c *Config) { c.TickInterval = 10 * time.Millisecond })
	var rendered []Status
	p.AddRenderer(RendererFunc(func(_ smoothing.AnimationState, st Status) {
		rendered = append(rendered, st)
	}))

	assert.Equal(t, 1, p.StepTo(start))
	assert.Equal(t, 0, p.StepTo(start.Add(5*time.Millisecond)))
	assert.Equal(t, 3, p.StepTo(start.Add(35*time.Millisecond)))
	assert.Equal(t, 0, p.StepTo(start.Add(20*time.Millisecond)), "time going backwards")

	// Observations are stamped with the driven clock.
	clock.Set(start.Add(35 * time.Millisecond))
	p.Offer(raw(landmarks.Network, face(0)))
	assert.Equal(t, 1, p.StepTo(start.Add(40*time.Millisecond)))

	require.Len(t, rendered, 5)
	last := rendered[4]
	assert.Equal(t, arbiter.NetworkAuthoritative, last.State)
	require.NotNil(t, last.NetworkAgeMs)
	assert.Equal(t, int64(5), *last.NetworkAgeMs)
	assert.Equal(t, uint64(5), last.Ticks)
}

func TestSetTuningParams_TimeoutBounds(t *testing.T) {
	p, _ := newPipeline(t, nil)
	before := p.GetTuningParams()

	for _, ms := range []int64{-1, 0, MaxTimeoutMs + 1, 18446744073710} {
		err := p.SetTuningParams(TuningUpdate{StaleTimeoutMs: &ms})
		assert.ErrorIs(t, err, ErrInvalidConfig, "stale %d", ms)
		err = p.SetTuningParams(TuningUpdate{LocalStaleTimeoutMs: &ms})
		assert.ErrorIs(t, err, ErrInvalidConfig, "local %d", ms)
	}
	assert.Equal(t, before, p.GetTuningParams())

	ms := MaxTimeoutMs
	require.NoError(t, p.SetTuningParams(TuningUpdate{StaleTimeoutMs: &ms}))
	assert.Equal(t, MaxTimeoutMs, p.GetTuningParams().StaleTimeoutMs)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"bad frame", func(c *Config) { c.TargetWidth = 0 }},
		{"smoothness", func(c *Config) { c.Smoothness = 1.5 }},
		{"head pose", func(c *Config) { c.HeadPoseSource = "imu" }},
		{"euler range", func(c *Config) { c.EulerRangeDegrees = 0 }},
		{"arbiter", func(c *Config) { c.Arbiter.StaleTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.Arbiter.StaleTimeout)
	assert.Equal(t, HeadPoseGeometry, cfg.HeadPoseSource)
	assert.Equal(t, 1920, cfg.TargetWidth)
}
