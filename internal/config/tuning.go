package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig represents the root configuration for pipeline tuning
// parameters. The schema matches the /api/params endpoint so the same JSON
// can be used for both startup configuration and runtime inspection.
//
// Fields are pointers so a partial JSON file only overrides what it names;
// the Get* methods supply defaults for everything else. The default values
// are empirically tuned against real headband sessions and intentionally
// preserved from field calibration rather than re-derived.
type TuningConfig struct {
	// Spectral params
	LineFrequencyHz      *float64 `json:"line_frequency_hz,omitempty"`
	BadChannelMicrovolts *float64 `json:"bad_channel_microvolts,omitempty"`

	// Artifact params
	ClippingMicrovolts    *float64 `json:"clipping_microvolts,omitempty"`
	PoorContactMicrovolts *float64 `json:"poor_contact_microvolts,omitempty"`

	// Separator params
	CalibrationSeconds     *int     `json:"calibration_seconds,omitempty"`
	ComponentKurtosisLimit *float64 `json:"component_kurtosis_limit,omitempty"`
	ComponentVarianceRatio *float64 `json:"component_variance_ratio,omitempty"`

	// Smoother params
	SmootherWindowTicks *int    `json:"smoother_window_ticks,omitempty"`
	MinDwell            *string `json:"min_dwell,omitempty"` // duration string like "10s"

	// Link params
	StallWindow          *string `json:"stall_window,omitempty"`    // duration string like "5s"
	ReconnectWait        *string `json:"reconnect_wait,omitempty"`  // duration string like "2s"
	ConnectTimeout       *string `json:"connect_timeout,omitempty"` // duration string like "10s"
	MaxReconnectAttempts *int    `json:"max_reconnect_attempts,omitempty"`
	MaxConsecutiveErrors *int    `json:"max_consecutive_errors,omitempty"`

	// Motion params
	TalkingConfidence           *float64 `json:"talking_confidence,omitempty"`
	TalkingConfidenceMeditation *float64 `json:"talking_confidence_meditation,omitempty"`
	TalkingMinDwell             *string  `json:"talking_min_dwell,omitempty"`
	PostureMinDwell             *string  `json:"posture_min_dwell,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields nil so every
// accessor falls through to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from
// the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.LineFrequencyHz != nil {
		if *c.LineFrequencyHz != 50 && *c.LineFrequencyHz != 60 {
			return fmt.Errorf("line_frequency_hz must be 50 or 60, got %v", *c.LineFrequencyHz)
		}
	}
	if c.BadChannelMicrovolts != nil && *c.BadChannelMicrovolts <= 0 {
		return fmt.Errorf("bad_channel_microvolts must be positive, got %v", *c.BadChannelMicrovolts)
	}
	if c.CalibrationSeconds != nil && *c.CalibrationSeconds < 5 {
		return fmt.Errorf("calibration_seconds must be at least 5, got %d", *c.CalibrationSeconds)
	}
	if c.SmootherWindowTicks != nil && (*c.SmootherWindowTicks < 3 || *c.SmootherWindowTicks > 120) {
		return fmt.Errorf("smoother_window_ticks must be in [3,120], got %d", *c.SmootherWindowTicks)
	}
	if c.MaxReconnectAttempts != nil && *c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must be non-negative, got %d", *c.MaxReconnectAttempts)
	}
	for name, v := range map[string]*string{
		"min_dwell":         c.MinDwell,
		"stall_window":      c.StallWindow,
		"reconnect_wait":    c.ReconnectWait,
		"connect_timeout":   c.ConnectTimeout,
		"talking_min_dwell": c.TalkingMinDwell,
		"posture_min_dwell": c.PostureMinDwell,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetLineFrequencyHz returns the powerline frequency for the notch filter.
func (c *TuningConfig) GetLineFrequencyHz() float64 {
	if c.LineFrequencyHz == nil {
		return 60
	}
	return *c.LineFrequencyHz
}

// GetBadChannelMicrovolts returns the per-channel amplitude limit at or above
// which a channel is excluded from spectral averaging.
func (c *TuningConfig) GetBadChannelMicrovolts() float64 {
	if c.BadChannelMicrovolts == nil {
		return 200
	}
	return *c.BadChannelMicrovolts
}

// GetClippingMicrovolts returns the amplitude treated as signal clipping.
func (c *TuningConfig) GetClippingMicrovolts() float64 {
	if c.ClippingMicrovolts == nil {
		return 500
	}
	return *c.ClippingMicrovolts
}

// GetPoorContactMicrovolts returns the mean amplitude below which electrode
// contact is considered poor.
func (c *TuningConfig) GetPoorContactMicrovolts() float64 {
	if c.PoorContactMicrovolts == nil {
		return 5
	}
	return *c.PoorContactMicrovolts
}

// GetCalibrationSeconds returns the raw-window accumulation span before the
// source separator fits its model.
func (c *TuningConfig) GetCalibrationSeconds() int {
	if c.CalibrationSeconds == nil {
		return 30
	}
	return *c.CalibrationSeconds
}

// GetComponentKurtosisLimit returns the excess-kurtosis limit above which a
// separated component is treated as a blink artifact.
func (c *TuningConfig) GetComponentKurtosisLimit() float64 {
	if c.ComponentKurtosisLimit == nil {
		return 5.0
	}
	return *c.ComponentKurtosisLimit
}

// GetComponentVarianceRatio returns the variance multiple over the median of
// the other components above which a component is treated as muscle artifact.
func (c *TuningConfig) GetComponentVarianceRatio() float64 {
	if c.ComponentVarianceRatio == nil {
		return 3.0
	}
	return *c.ComponentVarianceRatio
}

// GetSmootherWindowTicks returns the temporal smoother window length.
func (c *TuningConfig) GetSmootherWindowTicks() int {
	if c.SmootherWindowTicks == nil {
		return 30
	}
	return *c.SmootherWindowTicks
}

// GetMinDwell returns the minimum time the locked state label is held before
// it may change.
func (c *TuningConfig) GetMinDwell() time.Duration {
	return c.duration(c.MinDwell, 10*time.Second)
}

// GetStallWindow returns how long the mandatory stream may yield nothing
// before the link is treated as lost.
func (c *TuningConfig) GetStallWindow() time.Duration {
	return c.duration(c.StallWindow, 5*time.Second)
}

// GetReconnectWait returns the pause between reconnect attempts.
func (c *TuningConfig) GetReconnectWait() time.Duration {
	return c.duration(c.ReconnectWait, 2*time.Second)
}

// GetConnectTimeout returns the stream resolution timeout at connect.
func (c *TuningConfig) GetConnectTimeout() time.Duration {
	return c.duration(c.ConnectTimeout, 10*time.Second)
}

// GetMaxReconnectAttempts returns the reconnect bound after which the
// acquisition loop stops permanently.
func (c *TuningConfig) GetMaxReconnectAttempts() int {
	if c.MaxReconnectAttempts == nil {
		return 5
	}
	return *c.MaxReconnectAttempts
}

// GetMaxConsecutiveErrors returns the per-chunk error run length that
// triggers a reconnect.
func (c *TuningConfig) GetMaxConsecutiveErrors() int {
	if c.MaxConsecutiveErrors == nil {
		return 100
	}
	return *c.MaxConsecutiveErrors
}

// GetTalkingConfidence returns the talking-detection confidence threshold in
// conversation context.
func (c *TuningConfig) GetTalkingConfidence() float64 {
	if c.TalkingConfidence == nil {
		return 0.6
	}
	return *c.TalkingConfidence
}

// GetTalkingConfidenceMeditation returns the higher talking threshold used
// under meditation context to reduce false positives from slow movement.
func (c *TuningConfig) GetTalkingConfidenceMeditation() float64 {
	if c.TalkingConfidenceMeditation == nil {
		return 0.75
	}
	return *c.TalkingConfidenceMeditation
}

// GetTalkingMinDwell returns the talking-state dwell lock.
func (c *TuningConfig) GetTalkingMinDwell() time.Duration {
	return c.duration(c.TalkingMinDwell, 500*time.Millisecond)
}

// GetPostureMinDwell returns the posture-state dwell lock.
func (c *TuningConfig) GetPostureMinDwell() time.Duration {
	return c.duration(c.PostureMinDwell, 10*time.Second)
}
