// Package config defines node configuration and its loading.
//
// Configuration layers, lowest precedence first: built-in defaults, a YAML
// file named by LM_CONFIG, then LM_-prefixed environment variables.
package config

import "fmt"

// Node roles.
const (
	RoleBallWatch = "ballwatch" // drives the shot cycle, runs analysis
	RoleStrobeCam = "strobecam" // answers peer capture requests
)

// Config is the per-node process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Role selects the node personality: ballwatch or strobecam.
	Role string `koanf:"role"`

	// ListenAddr is the coordination channel listen address.
	ListenAddr string `koanf:"listen_addr"`

	// PeerURL is the peer node's coordination endpoint (ws://host:port/coord).
	PeerURL string `koanf:"peer_url"`

	// WebAddr serves the status API, live feed and metrics. Empty disables it.
	WebAddr string `koanf:"web_addr"`

	// StorePath is the sqlite shot-history database. Empty disables it.
	StorePath string `koanf:"store_path"`

	// SimulatorURL receives published results by HTTP POST. Empty disables it.
	SimulatorURL string `koanf:"simulator_url"`

	// CalibrationPath is the session calibration YAML. Empty uses defaults.
	CalibrationPath string `koanf:"calibration_path"`

	// Detector selects the detection backend: hough or onnx.
	Detector string `koanf:"detector"`

	// ModelPath is the ONNX model file (onnx backend only).
	ModelPath string `koanf:"model_path"`

	// CameraID is the local capture device index.
	CameraID int `koanf:"camera_id"`

	// ExposureCount is the number of strobe pulses per shot.
	ExposureCount int `koanf:"exposure_count"`

	// PeerTimeoutMS bounds the wait for the peer's strobe image.
	PeerTimeoutMS int `koanf:"peer_timeout_ms"`

	// PollIntervalMS paces the ball-watch trigger loop.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// StableFrames is the number of consecutive still address frames
	// required before the departure trigger arms.
	StableFrames int `koanf:"stable_frames"`

	// ArmOnStart arms the node immediately instead of waiting for a
	// control directive.
	ArmOnStart bool `koanf:"arm_on_start"`

	// SpinEnabled toggles spin estimation.
	SpinEnabled bool `koanf:"spin_enabled"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Role:           RoleBallWatch,
		ListenAddr:     ":9401",
		WebAddr:        ":9402",
		Detector:       "hough",
		ExposureCount:  5,
		PeerTimeoutMS:  4000,
		PollIntervalMS: 2,
		StableFrames:   4,
		ArmOnStart:     true,
		SpinEnabled:    true,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Role != RoleBallWatch && c.Role != RoleStrobeCam {
		return fmt.Errorf("config: unknown role %q", c.Role)
	}
	if c.Role == RoleBallWatch && c.PeerURL == "" {
		return fmt.Errorf("config: ballwatch role requires peer_url")
	}
	if c.ExposureCount < 2 {
		return fmt.Errorf("config: exposure_count must be at least 2, got %d", c.ExposureCount)
	}
	if c.PeerTimeoutMS <= 0 {
		return fmt.Errorf("config: peer_timeout_ms must be positive")
	}
	return nil
}
