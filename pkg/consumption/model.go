package consumption

import "time"

// Config holds model coefficients.
// Units:
//   - PIdle/PMax: Watts for the whole CPU complex
//   - Gamma: dimensionless (CPU nonlinearity)
type Config struct {
	PIdle float64 `yaml:"p_idle" json:"p_idle"`
	PMax  float64 `yaml:"p_max" json:"p_max"`
	Gamma float64 `yaml:"gamma" json:"gamma"`
}

// _defaultConfig returns a Config pre-filled with coefficients typical of
// a fanless ARM SoC board.
func _defaultConfig() *Config {
	return &Config{
		PIdle: 1.5, // W at idle
		PMax:  8.0, // W at full utilization
		Gamma: 1.3, // CPU curve exponent
	}
}

// DefaultConfig returns a copy of the default coefficients.
func DefaultConfig() Config { return *_defaultConfig() }

// Sample is one utilization observation over Dt.
type Sample struct {
	Dt time.Duration
	// Utilization of the whole CPU complex in [0,1].
	Utilization float64
}

// Result is the instantaneous power breakdown for one sample.
type Result struct {
	PIdle  float64 // W
	PDyn   float64 // W
	PTotal float64 // W
}
