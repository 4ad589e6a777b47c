package payroll

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot freezes the rule set a batch runs against.
type Snapshot struct {
	Version           int                `json:"version,omitempty" yaml:"version"`
	ID                string             `json:"id,omitempty" yaml:"id,omitempty"`
	TakenAt           time.Time          `json:"takenAt" yaml:"takenAt,omitempty"`
	Components        []SalaryComponent  `json:"components" yaml:"components"`
	TaxConfigurations []TaxConfiguration `json:"taxConfigurations" yaml:"taxConfigurations"`
}

// Clone deep-copies the snapshot so later edits to the source never reach a
// running batch.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Components = cloneComponents(s.Components)
	out.TaxConfigurations = make([]TaxConfiguration, len(s.TaxConfigurations))
	for i, cfg := range s.TaxConfigurations {
		out.TaxConfigurations[i] = cloneTaxConfiguration(cfg)
	}
	return out
}

// Validate checks the structural soundness of the active rules.
func (s Snapshot) Validate() error {
	if _, err := planEvaluation(ActiveComponents(s.Components)); err != nil && IsStructural(err) {
		return err
	}
	for _, cfg := range s.TaxConfigurations {
		if !cfg.IsActive {
			continue
		}
		if !cfg.TaxType.Valid() {
			return &InvalidSlabDefinitionError{TaxType: cfg.TaxType, Reason: "unknown tax type"}
		}
		if cfg.EffectiveTo != nil && dateOnly(*cfg.EffectiveTo).Before(dateOnly(cfg.EffectiveFrom)) {
			return fmt.Errorf("tax configuration %s: %w", cfg.ID, ErrInvalidTaxConfigWindow)
		}
		if _, err := ValidateSlabs(cfg.TaxType, cfg.Slabs); err != nil {
			return err
		}
	}
	return nil
}

func ParseSnapshotYAML(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Snapshot{}, err
	}
	if s.Version != 1 {
		return Snapshot{}, errors.New("snapshot: unsupported version")
	}
	if len(s.Components) == 0 && len(s.TaxConfigurations) == 0 {
		return Snapshot{}, ErrSnapshotEmpty
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func LoadSnapshotFile(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return ParseSnapshotYAML(b)
}

func cloneComponents(components []SalaryComponent) []SalaryComponent {
	if components == nil {
		return nil
	}
	return append([]SalaryComponent(nil), components...)
}

func cloneTaxConfiguration(cfg TaxConfiguration) TaxConfiguration {
	out := cfg
	if cfg.EffectiveTo != nil {
		to := *cfg.EffectiveTo
		out.EffectiveTo = &to
	}
	out.Slabs = make([]TaxSlab, len(cfg.Slabs))
	for i, slab := range cfg.Slabs {
		out.Slabs[i] = slab
		if slab.Max != nil {
			upper := *slab.Max
			out.Slabs[i].Max = &upper
		}
	}
	return out
}
