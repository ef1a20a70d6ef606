package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// The Get* fallbacks below must agree with it; tuning_test.go checks that.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for recognition tuning.
// Every field is optional; omitted fields fall back to the Get* defaults, so
// partial files are safe. The schema matches the /api/tuning response.
type TuningConfig struct {
	// Detection filtering and presence debouncing
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	StabilityThreshold  *int     `json:"stability_threshold,omitempty"`
	PresenceCap         *int     `json:"presence_cap,omitempty"` // 0 or unset: 2*stability_threshold-1

	// Hand interaction rectangle (pixels)
	RegionWidth  *int `json:"region_width,omitempty"`
	RegionHeight *int `json:"region_height,omitempty"`

	// Action state machine
	HandEnterThreshold *int `json:"hand_enter_threshold,omitempty"`
	MinOutFrames       *int `json:"min_out_frames,omitempty"`

	// Wrist Kalman filter
	OutlierDistance   *float64 `json:"outlier_distance,omitempty"`
	KalmanDt          *float64 `json:"kalman_dt,omitempty"`
	ProcessNoise      *float64 `json:"process_noise,omitempty"`
	MeasurementNoise  *float64 `json:"measurement_noise,omitempty"`
	InitialCovariance *float64 `json:"initial_covariance,omitempty"`

	// Runner
	FrameInterval         *string `json:"frame_interval,omitempty"` // duration string like "33ms"
	InferenceEveryNFrames *int    `json:"inference_every_n_frames,omitempty"`
	StatusInterval        *string `json:"status_interval,omitempty"` // duration string like "1s"
	StatusHistorySize     *int    `json:"status_history_size,omitempty"`
	EventBufferSize       *int    `json:"event_buffer_size,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil, so
// every getter yields its built-in default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
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

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded; intended for binaries and test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/recognition/l3wrist/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}

	positiveInts := []struct {
		name string
		v    *int
	}{
		{"stability_threshold", c.StabilityThreshold},
		{"region_width", c.RegionWidth},
		{"region_height", c.RegionHeight},
		{"hand_enter_threshold", c.HandEnterThreshold},
		{"min_out_frames", c.MinOutFrames},
		{"inference_every_n_frames", c.InferenceEveryNFrames},
		{"status_history_size", c.StatusHistorySize},
		{"event_buffer_size", c.EventBufferSize},
	}
	for _, p := range positiveInts {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	if c.PresenceCap != nil && *c.PresenceCap != 0 && *c.PresenceCap < c.GetStabilityThreshold() {
		return fmt.Errorf("presence_cap %d must be at least stability_threshold %d", *c.PresenceCap, c.GetStabilityThreshold())
	}

	positiveFloats := []struct {
		name string
		v    *float64
	}{
		{"outlier_distance", c.OutlierDistance},
		{"kalman_dt", c.KalmanDt},
		{"initial_covariance", c.InitialCovariance},
	}
	for _, p := range positiveFloats {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}
	if c.ProcessNoise != nil && *c.ProcessNoise < 0 {
		return fmt.Errorf("process_noise must be non-negative, got %f", *c.ProcessNoise)
	}
	if c.MeasurementNoise != nil && *c.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement_noise must be positive, got %f", *c.MeasurementNoise)
	}

	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("frame_interval must be positive, got %s", d)
		}
	}
	if c.StatusInterval != nil && *c.StatusInterval != "" {
		if _, err := time.ParseDuration(*c.StatusInterval); err != nil {
			return fmt.Errorf("invalid status_interval '%s': %w", *c.StatusInterval, err)
		}
	}

	return nil
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.5
	}
	return *c.ConfidenceThreshold
}

// GetStabilityThreshold returns the stability_threshold value or the default.
func (c *TuningConfig) GetStabilityThreshold() int {
	if c.StabilityThreshold == nil {
		return 6
	}
	return *c.StabilityThreshold
}

// GetPresenceCap returns the presence_cap value. Unset or zero derives
// 2*stability_threshold-1, which makes the absent-side lag equal the
// present-side lag for a saturated label.
func (c *TuningConfig) GetPresenceCap() int {
	if c.PresenceCap == nil || *c.PresenceCap == 0 {
		return 2*c.GetStabilityThreshold() - 1
	}
	return *c.PresenceCap
}

// GetRegionWidth returns the region_width value or the default.
func (c *TuningConfig) GetRegionWidth() int {
	if c.RegionWidth == nil {
		return 150
	}
	return *c.RegionWidth
}

// GetRegionHeight returns the region_height value or the default.
func (c *TuningConfig) GetRegionHeight() int {
	if c.RegionHeight == nil {
		return 150
	}
	return *c.RegionHeight
}

// GetHandEnterThreshold returns the hand_enter_threshold value or the default.
func (c *TuningConfig) GetHandEnterThreshold() int {
	if c.HandEnterThreshold == nil {
		return 2
	}
	return *c.HandEnterThreshold
}

// GetMinOutFrames returns the min_out_frames value or the default.
func (c *TuningConfig) GetMinOutFrames() int {
	if c.MinOutFrames == nil {
		return 2
	}
	return *c.MinOutFrames
}

// GetOutlierDistance returns the outlier_distance value or the default.
func (c *TuningConfig) GetOutlierDistance() float64 {
	if c.OutlierDistance == nil {
		return 80.0
	}
	return *c.OutlierDistance
}

// GetKalmanDt returns the kalman_dt value or the default.
func (c *TuningConfig) GetKalmanDt() float64 {
	if c.KalmanDt == nil {
		return 1.0
	}
	return *c.KalmanDt
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 5.0
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 5.0
	}
	return *c.MeasurementNoise
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *TuningConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return 500.0
	}
	return *c.InitialCovariance
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 33 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil || d <= 0 {
		return 33 * time.Millisecond
	}
	return d
}

// GetInferenceEveryNFrames returns the inference_every_n_frames value or the default.
func (c *TuningConfig) GetInferenceEveryNFrames() int {
	if c.InferenceEveryNFrames == nil {
		return 3
	}
	return *c.InferenceEveryNFrames
}

// GetStatusInterval parses and returns the StatusInterval as a time.Duration.
func (c *TuningConfig) GetStatusInterval() time.Duration {
	if c.StatusInterval == nil || *c.StatusInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.StatusInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetStatusHistorySize returns the status_history_size value or the default.
func (c *TuningConfig) GetStatusHistorySize() int {
	if c.StatusHistorySize == nil {
		return 300
	}
	return *c.StatusHistorySize
}

// GetEventBufferSize returns the event_buffer_size value or the default.
func (c *TuningConfig) GetEventBufferSize() int {
	if c.EventBufferSize == nil {
		return 64
	}
	return *c.EventBufferSize
}
