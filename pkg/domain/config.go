package domain

import (
	"sort"
	"time"
)

// BaseConfig returns the assay's base analytical configuration, independent of
// any SOP revision.
func (a Assay) BaseConfig() SOPConfig {
	return SOPConfig{
		Analytes:  cloneAnalytes(a.Analytes),
		QCTypes:   cloneQCTypes(a.QCTypes),
		BatchSize: cloneBatchSize(a.BatchSize),
	}
}

// ResolveEffectiveConfig selects the analytical configuration in force at
// asOf. It picks the SOP revision with status other than Superseded and the
// latest effective date at or before asOf; revisions sharing an effective date
// are broken by the higher version string. When no revision qualifies the
// assay's base configuration applies.
func ResolveEffectiveConfig(assay Assay, asOf time.Time) SOPConfig {
	candidates := make([]SOPRevision, 0, len(assay.RevisionHistory))
	for _, rev := range assay.RevisionHistory {
		if rev.Status == RevisionSuperseded {
			continue
		}
		if rev.Config == nil {
			continue
		}
		if rev.EffectiveDate.After(asOf) {
			continue
		}
		candidates = append(candidates, rev)
	}
	if len(candidates) == 0 {
		return assay.BaseConfig()
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].EffectiveDate.Equal(candidates[j].EffectiveDate) {
			return candidates[i].EffectiveDate.Before(candidates[j].EffectiveDate)
		}
		return candidates[i].Version < candidates[j].Version
	})
	chosen := candidates[len(candidates)-1]
	return SOPConfig{
		Analytes:  cloneAnalytes(chosen.Config.Analytes),
		QCTypes:   cloneQCTypes(chosen.Config.QCTypes),
		BatchSize: cloneBatchSize(chosen.Config.BatchSize),
	}
}

// EffectiveBatchSize resolves the batch size bounds in force at asOf, falling
// back to the assay base bounds when the effective config omits them. When
// neither defines bounds the assay is unconstrained and the second return is
// false.
func EffectiveBatchSize(assay Assay, asOf time.Time) (BatchSizeBounds, bool) {
	cfg := ResolveEffectiveConfig(assay, asOf)
	if cfg.BatchSize != nil {
		return *cfg.BatchSize, true
	}
	if assay.BatchSize != nil {
		return *assay.BatchSize, true
	}
	return BatchSizeBounds{}, false
}

func cloneAnalytes(in []Analyte) []Analyte {
	if in == nil {
		return nil
	}
	out := make([]Analyte, len(in))
	copy(out, in)
	return out
}

func cloneQCTypes(in []QCType) []QCType {
	if in == nil {
		return nil
	}
	out := make([]QCType, len(in))
	copy(out, in)
	return out
}

func cloneBatchSize(in *BatchSizeBounds) *BatchSizeBounds {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}
