package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var onePercent = decimal.New(1, -2)

// SelectConfiguration picks the active configuration of taxType whose window
// contains payDate. The latest EffectiveFrom wins; equal starts fall back to
// the lowest ID.
func SelectConfiguration(configs []TaxConfiguration, taxType TaxType, payDate time.Time) (TaxConfiguration, error) {
	day := dateOnly(payDate)
	best := -1
	for i, cfg := range configs {
		if cfg.TaxType != taxType || !cfg.IsActive || !cfg.appliesOn(day) {
			continue
		}
		if best < 0 || preferConfiguration(cfg, configs[best]) {
			best = i
		}
	}
	if best < 0 {
		return TaxConfiguration{}, &NoApplicableTaxConfigurationError{TaxType: taxType, PayDate: day}
	}
	return configs[best], nil
}

func (c TaxConfiguration) appliesOn(day time.Time) bool {
	if dateOnly(c.EffectiveFrom).After(day) {
		return false
	}
	if c.EffectiveTo != nil && day.After(dateOnly(*c.EffectiveTo)) {
		return false
	}
	return true
}

// Overlaps reports whether the effective windows of c and other share a day.
func (c TaxConfiguration) Overlaps(other TaxConfiguration) bool {
	if c.TaxType != other.TaxType {
		return false
	}
	if c.EffectiveTo != nil && dateOnly(*c.EffectiveTo).Before(dateOnly(other.EffectiveFrom)) {
		return false
	}
	if other.EffectiveTo != nil && dateOnly(*other.EffectiveTo).Before(dateOnly(c.EffectiveFrom)) {
		return false
	}
	return true
}

func preferConfiguration(candidate, current TaxConfiguration) bool {
	cf, bf := dateOnly(candidate.EffectiveFrom), dateOnly(current.EffectiveFrom)
	if !cf.Equal(bf) {
		return cf.After(bf)
	}
	return candidate.ID < current.ID
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateSlabs returns a copy of slabs sorted by Min after checking that they
// form one contiguous, non-overlapping table ending in a single unbounded slab.
func ValidateSlabs(taxType TaxType, slabs []TaxSlab) ([]TaxSlab, error) {
	invalid := func(format string, args ...any) error {
		return &InvalidSlabDefinitionError{TaxType: taxType, Reason: fmt.Sprintf(format, args...)}
	}
	if len(slabs) == 0 {
		return nil, invalid("no slabs defined")
	}

	sorted := append([]TaxSlab(nil), slabs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min.LessThan(sorted[j].Min)
	})

	lastFlat := decimal.Zero
	for i, slab := range sorted {
		if slab.Min.IsNegative() {
			return nil, invalid("slab %d has negative lower bound %s", i, slab.Min)
		}
		if slab.Rate.IsNegative() {
			return nil, invalid("slab %d has negative rate %s", i, slab.Rate)
		}
		if !slab.RateKind.Valid() {
			return nil, invalid("slab %d has unknown rate kind %q", i, slab.RateKind)
		}
		if slab.Max != nil && slab.Max.LessThanOrEqual(slab.Min) {
			return nil, invalid("slab %d upper bound %s does not exceed lower bound %s", i, *slab.Max, slab.Min)
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.Max == nil {
				return nil, invalid("unbounded slab must be the last slab")
			}
			switch {
			case prev.Max.LessThan(slab.Min):
				return nil, invalid("gap between %s and %s", *prev.Max, slab.Min)
			case prev.Max.GreaterThan(slab.Min):
				return nil, invalid("slabs overlap between %s and %s", slab.Min, *prev.Max)
			}
		}
		if slab.RateKind.IsFlat() {
			if slab.Rate.LessThan(lastFlat) {
				return nil, invalid("flat amount %s is lower than preceding flat amount %s", slab.Rate, lastFlat)
			}
			lastFlat = slab.Rate
		}
	}
	if sorted[len(sorted)-1].Max != nil {
		return nil, invalid("top slab must be unbounded")
	}
	return sorted, nil
}

// ComputeTax applies slabs progressively: every percentage slab taxes the part
// of income that falls inside it, and the highest flat slab reached adds its
// amount once.
func ComputeTax(taxableIncome decimal.Decimal, slabs []TaxSlab) (decimal.Decimal, error) {
	sorted, err := ValidateSlabs("", slabs)
	if err != nil {
		return decimal.Zero, err
	}
	return progressiveTax(taxableIncome, sorted), nil
}

func progressiveTax(income decimal.Decimal, sorted []TaxSlab) decimal.Decimal {
	tax := decimal.Zero
	flat := decimal.Zero
	for _, slab := range sorted {
		if slab.RateKind.IsFlat() {
			if income.GreaterThanOrEqual(slab.Min) {
				flat = slab.Rate
			}
			continue
		}
		if income.LessThanOrEqual(slab.Min) {
			break
		}
		upper := income
		if slab.Max != nil && slab.Max.LessThan(income) {
			upper = *slab.Max
		}
		tax = tax.Add(upper.Sub(slab.Min).Mul(slab.Rate).Mul(onePercent))
	}
	return tax.Add(flat)
}

// SlabTable is a validated slab table with the tax accrued below each slab
// precomputed, so tax for any income is one lookup plus one multiplication.
type SlabTable struct {
	taxType TaxType
	rows    []slabRow
}

type slabRow struct {
	slab TaxSlab
	base decimal.Decimal
	flat decimal.Decimal
}

func CompileSlabs(taxType TaxType, slabs []TaxSlab) (SlabTable, error) {
	sorted, err := ValidateSlabs(taxType, slabs)
	if err != nil {
		return SlabTable{}, err
	}
	rows := make([]slabRow, len(sorted))
	base := decimal.Zero
	flat := decimal.Zero
	for i, slab := range sorted {
		if slab.RateKind.IsFlat() {
			flat = slab.Rate
		}
		rows[i] = slabRow{slab: slab, base: base, flat: flat}
		if !slab.RateKind.IsFlat() && slab.Max != nil {
			base = base.Add(slab.Max.Sub(slab.Min).Mul(slab.Rate).Mul(onePercent))
		}
	}
	return SlabTable{taxType: taxType, rows: rows}, nil
}

func (t SlabTable) TaxType() TaxType {
	return t.taxType
}

func (t SlabTable) TaxFor(income decimal.Decimal) decimal.Decimal {
	idx := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].slab.Min.GreaterThan(income)
	}) - 1
	if idx < 0 {
		return decimal.Zero
	}
	row := t.rows[idx]
	tax := row.base
	if !row.slab.RateKind.IsFlat() {
		tax = tax.Add(income.Sub(row.slab.Min).Mul(row.slab.Rate).Mul(onePercent))
	}
	return tax.Add(row.flat)
}
