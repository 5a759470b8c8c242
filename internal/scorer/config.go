package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights holds the component weights of the composite lead score.
// The funding weight is an additive bonus, not part of the base blend.
type Weights struct {
	Revenue float64 `yaml:"revenue"`
	Size    float64 `yaml:"size"`
	Traffic float64 `yaml:"traffic"`
	Rank    float64 `yaml:"rank"`
	Funding float64 `yaml:"funding"`
}

// RevenueBrackets are yearly-revenue thresholds (USD) for the piecewise
// revenue component.
type RevenueBrackets struct {
	VeryHigh float64 `yaml:"very_high"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`
}

// EmployeeBrackets are headcount thresholds for the size component.
type EmployeeBrackets struct {
	Enterprise int `yaml:"enterprise"`
	MidMarket  int `yaml:"mid_market"`
	Small      int `yaml:"small"`
	Micro      int `yaml:"micro"`
}

// Config holds all tunable scoring parameters.
type Config struct {
	Weights   Weights          `yaml:"weights"`
	Revenue   RevenueBrackets  `yaml:"revenue_brackets"`
	Employees EmployeeBrackets `yaml:"employee_brackets"`
	TopLeads  int              `yaml:"top_leads"`
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Revenue: 0.40,
			Size:    0.30,
			Traffic: 0.15,
			Rank:    0.15,
			Funding: 0.05,
		},
		Revenue: RevenueBrackets{
			VeryHigh: 10_000_000,
			High:     1_000_000,
			Medium:   100_000,
			Low:      10_000,
		},
		Employees: EmployeeBrackets{
			Enterprise: 100,
			MidMarket:  25,
			Small:      10,
			Micro:      1,
		},
		TopLeads: 10,
	}
}

// LoadConfig reads scoring parameters from a YAML file, applying defaults
// for anything unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "scorer: read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrap(err, "scorer: parse config")
	}
	if cfg.TopLeads <= 0 {
		cfg.TopLeads = 10
	}
	return cfg, nil
}
