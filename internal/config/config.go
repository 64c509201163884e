// Package config loads command configuration from PUPPET_* environment
// variables. Commands apply flag overrides on top.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teslashibe/go-puppet/pkg/arbiter"
	"github.com/teslashibe/go-puppet/pkg/features"
	"github.com/teslashibe/go-puppet/pkg/ingest"
	"github.com/teslashibe/go-puppet/pkg/puppet"
)

// Config is the full configuration of the puppet command.
type Config struct {
	// Server
	HTTPAddr  string `env:"PUPPET_HTTP_ADDR" envDefault:":8080"`
	StaticDir string `env:"PUPPET_STATIC_DIR"`
	LogLevel  string `env:"PUPPET_LOG_LEVEL" envDefault:"info"`

	// Pipeline
	TickRate          float64       `env:"PUPPET_TICK_RATE" envDefault:"60"` // Hz
	TargetWidth       int           `env:"PUPPET_TARGET_WIDTH" envDefault:"1920"`
	TargetHeight      int           `env:"PUPPET_TARGET_HEIGHT" envDefault:"1080"`
	Smoothness        float64       `env:"PUPPET_SMOOTHNESS" envDefault:"0.5"`
	Demo              bool          `env:"PUPPET_DEMO"`
	HeadPoseSource    string        `env:"PUPPET_HEAD_POSE" envDefault:"geometry"`
	EulerRangeDegrees float64       `env:"PUPPET_EULER_RANGE" envDefault:"30"`
	StaleTimeout      time.Duration `env:"PUPPET_STALE_TIMEOUT" envDefault:"500ms"`
	LocalStaleTimeout time.Duration `env:"PUPPET_LOCAL_STALE_TIMEOUT" envDefault:"500ms"`

	// Producers
	UDPEnabled bool   `env:"PUPPET_UDP_ENABLED" envDefault:"true"`
	UDPAddr    string `env:"PUPPET_UDP_ADDR" envDefault:"127.0.0.1:11573"`
	BridgeURL  string `env:"PUPPET_BRIDGE_URL"` // empty disables the bridge client
	MQTTBroker string `env:"PUPPET_MQTT_BROKER"` // empty disables MQTT
	MQTTTopic  string `env:"PUPPET_MQTT_TOPIC" envDefault:"puppet/tracking"`
	MQTTQoS    uint8  `env:"PUPPET_MQTT_QOS"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Pipeline converts the settings into a validated pipeline configuration.
func (c Config) Pipeline() (puppet.Config, error) {
	if c.TickRate <= 0 {
		return puppet.Config{}, fmt.Errorf("%w: tick rate must be positive, got %v", puppet.ErrInvalidConfig, c.TickRate)
	}
	headPose, err := puppet.ParseHeadPoseSource(c.HeadPoseSource)
	if err != nil {
		return puppet.Config{}, err
	}

	cfg := puppet.Config{
		TickInterval:      time.Duration(float64(time.Second) / c.TickRate),
		TargetWidth:       c.TargetWidth,
		TargetHeight:      c.TargetHeight,
		Smoothness:        c.Smoothness,
		Demo:              c.Demo,
		HeadPoseSource:    headPose,
		EulerRangeDegrees: c.EulerRangeDegrees,
		Arbiter: arbiter.Config{
			StaleTimeout:      c.StaleTimeout,
			LocalStaleTimeout: c.LocalStaleTimeout,
		},
		Calibration: features.DefaultCalibration(),
	}
	if err := cfg.Validate(); err != nil {
		return puppet.Config{}, err
	}
	return cfg, nil
}

// MQTT returns the MQTT source configuration.
func (c Config) MQTT() ingest.MQTTConfig {
	return ingest.MQTTConfig{
		Broker: c.MQTTBroker,
		Topic:  c.MQTTTopic,
		QoS:    c.MQTTQoS,
	}
}
