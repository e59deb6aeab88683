package api

import (
	"os"

	yaml "gopkg.in/yaml.v3"
)

// SolverDefaults are the tunables applied to every solve request that leaves
// them unset. Loaded from the YAML file named by SOLVER_CONFIG; zero fields
// fall through to the engine's built-in defaults.
type SolverDefaults struct {
	MaxIterations       int    `yaml:"maxIterations" json:"maxIterations,omitempty"`
	MaxSeconds          int    `yaml:"maxSeconds" json:"maxSeconds,omitempty"`
	StagnationThreshold int    `yaml:"stagnationThreshold" json:"stagnationThreshold,omitempty"`
	TenureMin           int    `yaml:"tenureMin" json:"tenureMin,omitempty"`
	TenureMax           int    `yaml:"tenureMax" json:"tenureMax,omitempty"`
	Policy              string `yaml:"policy" json:"policy,omitempty"`
	Workers             int    `yaml:"workers" json:"workers,omitempty"`
	ProgressEvery       int    `yaml:"progressEvery" json:"progressEvery,omitempty"`
}

// LoadSolverDefaults reads defaults from path. An empty path yields the zero
// value (engine defaults).
func LoadSolverDefaults(path string) (SolverDefaults, error) {
	var d SolverDefaults
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, err
	}
	return d, nil
}
