// Package catalog resolves a run configuration into the ordered list of runs
// analysed for one detector and run type.
package catalog

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/calibration.report/internal/config"
)

// SubGroup identifies one of the two ordered halves of a run type's run list.
type SubGroup string

const (
	Sin1  SubGroup = "Sin1"
	Sin2  SubGroup = "Sin2"
	Sout1 SubGroup = "Sout1"
	Sout2 SubGroup = "Sout2"
)

// Run is one data-taking acquisition.
type Run struct {
	ID    int
	Path  string
	Group SubGroup
}

// Catalog is the resolved, immutable run list for one invocation. Runs are
// in configuration order: every first sub-group run precedes every second
// sub-group run, and all downstream indexing relies on that.
type Catalog struct {
	Detector  int
	RunType   config.RunType
	Threshold float64
	Runs      []Run

	// SplitN is the size of the first sub-group as configured.
	SplitN int
	// Group2Size is the size of the second sub-group as configured. It is
	// informational; membership is assigned by position using SplitN.
	Group2Size int
}

// Resolve validates det and runType against cfg and returns the ordered run
// list. Unknown detectors, unknown run types and missing keys fail here.
func Resolve(cfg *config.Config, det int, runType config.RunType) (*Catalog, error) {
	detector, err := config.LookupDetector(det)
	if err != nil {
		return nil, err
	}
	if _, err := config.ParseRunType(string(runType)); err != nil {
		return nil, err
	}

	threshold, err := detector.Threshold(cfg)
	if err != nil {
		return nil, fmt.Errorf("detector %d threshold: %w", det, err)
	}

	prefix, err := cfg.String("prefix")
	if err != nil {
		return nil, err
	}
	suffix, err := cfg.String("suffix")
	if err != nil {
		return nil, err
	}

	ids, err := cfg.IntSlice(detector.Key(string(runType)))
	if err != nil {
		return nil, err
	}
	first, err := cfg.IntSlice(detector.Key(string(runType) + "1"))
	if err != nil {
		return nil, err
	}
	// The second sub-group list is optional; when absent it is whatever
	// follows the first.
	var second []int
	if key := detector.Key(string(runType) + "2"); cfg.Has(key) {
		if second, err = cfg.IntSlice(key); err != nil {
			return nil, err
		}
	}

	g1, g2 := SubGroups(runType)

	runs := make([]Run, len(ids))
	for i, id := range ids {
		group := g2
		if i < len(first) {
			group = g1
		}
		runs[i] = Run{
			ID:    id,
			Path:  prefix + strconv.Itoa(id) + suffix,
			Group: group,
		}
	}

	group2 := len(second)
	if second == nil {
		group2 = len(ids) - len(first)
		if group2 < 0 {
			group2 = 0
		}
	}

	return &Catalog{
		Detector:   det,
		RunType:    runType,
		Threshold:  threshold,
		Runs:       runs,
		SplitN:     len(first),
		Group2Size: group2,
	}, nil
}

// IDs returns the run identifiers in catalog order.
func (c *Catalog) IDs() []int {
	ids := make([]int, len(c.Runs))
	for i, r := range c.Runs {
		ids[i] = r.ID
	}
	return ids
}

// Paths returns the run file paths in catalog order.
func (c *Catalog) Paths() []string {
	paths := make([]string, len(c.Runs))
	for i, r := range c.Runs {
		paths[i] = r.Path
	}
	return paths
}

// Describe returns a short label such as "detector 2 Sout".
func (c *Catalog) Describe() string {
	return fmt.Sprintf("detector %d %s", c.Detector, c.RunType)
}

// SubGroups returns the first and second sub-group names of runType.
func SubGroups(runType config.RunType) (SubGroup, SubGroup) {
	if runType == config.SampleOut {
		return Sout1, Sout2
	}
	return Sin1, Sin2
}
