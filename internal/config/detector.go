package config

import (
	"fmt"
	"sort"
)

// RunType selects the experimental condition: sample in or sample out of
// the beam path.
type RunType string

const (
	SampleIn  RunType = "Sin"
	SampleOut RunType = "Sout"
)

// ParseRunType validates s as a run type.
func ParseRunType(s string) (RunType, error) {
	switch RunType(s) {
	case SampleIn, SampleOut:
		return RunType(s), nil
	}
	return "", fmt.Errorf("%w: unknown run type %q (expected %q or %q)", ErrConfiguration, s, SampleIn, SampleOut)
}

// Detector describes the configuration keys used for one detector. Override
// keys replace the generic key of the same role when present in the table;
// an empty override means the generic key is used.
type Detector struct {
	ID           int
	ThresholdKey string

	// Overrides keyed by the generic key name, e.g. "Sin" -> "Sin_DET1".
	Overrides map[string]string
}

// detectors maps every supported detector id to its keys.
var detectors = map[int]Detector{
	1: {ID: 1, ThresholdKey: "cut_a_det1", Overrides: map[string]string{"Sin": "Sin_DET1", "Sin2": "Sin2_DET1"}},
	2: {ID: 2, ThresholdKey: "cut_a_det2"},
	3: {ID: 3, ThresholdKey: "cut_a_det3"},
	4: {ID: 4, ThresholdKey: "cut_a_det4"},
	7: {ID: 7, ThresholdKey: "cut_a_det7"},
	8: {ID: 8, ThresholdKey: "cut_a_det8", Overrides: map[string]string{"Sin": "Sin_DET8", "Sin1": "Sin1_DET8"}},
}

// LookupDetector returns the table entry for id or a configuration error
// for unsupported detectors.
func LookupDetector(id int) (Detector, error) {
	d, ok := detectors[id]
	if !ok {
		return Detector{}, fmt.Errorf("%w: unsupported detector %d (valid: %v)", ErrConfiguration, id, DetectorIDs())
	}
	return d, nil
}

// DetectorIDs returns the supported detector ids in ascending order.
func DetectorIDs() []int {
	ids := make([]int, 0, len(detectors))
	for id := range detectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Key returns the configuration key this detector reads for the generic
// key name.
func (d Detector) Key(generic string) string {
	if k, ok := d.Overrides[generic]; ok {
		return k
	}
	return generic
}

// Threshold returns the detector's amplitude threshold from cfg.
func (d Detector) Threshold(cfg *Config) (float64, error) {
	return cfg.Float(d.ThresholdKey)
}
