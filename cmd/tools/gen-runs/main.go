// Command gen-runs writes synthetic SQLite run files and a matching run
// configuration, for demos and for trying the report tools without beam
// data.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/events"
)

var (
	outDir  = flag.String("o", "runs", "output directory")
	nRuns   = flag.Int("n", 12, "runs per run type")
	firstID = flag.Int("id", 100, "first run id")
	samples = flag.Int("samples", events.DefaultSynthetic.Samples, "amplitude samples per detector per run")
	seed    = flag.Uint64("seed", 1, "random seed")
	jumpAt  = flag.Int("jump-at", -1, "run index from which efficiency jumps by -jump (-1 = never)")
	jump    = flag.Float64("jump", 0.1, "relative efficiency change applied from -jump-at")
	asYAML  = flag.Bool("yaml", false, "write runs.yaml instead of runs.cmnd")
)

func main() {
	flag.Parse()
	if *nRuns < 2 {
		log.Fatal("-n must be at least 2")
	}

	dir, err := filepath.Abs(*outDir)
	if err != nil {
		log.Fatalf("failed to resolve %s: %v", *outDir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("failed to create %s: %v", dir, err)
	}

	gen := events.DefaultSynthetic
	gen.Samples = *samples
	if *jumpAt >= 0 {
		gen.EfficiencyJump = *jump
		gen.JumpAt = *jumpAt
	}

	ctx := context.Background()
	prefix := filepath.Join(dir, "run_")
	const suffix = ".sqlite"

	n := *nRuns
	total := 2 * n
	sin := make([]int, n)
	sout := make([]int, n)
	for i := 0; i < total; i++ {
		id := *firstID + i
		path := prefix + strconv.Itoa(id) + suffix
		// Sample-out runs repeat the sample-in indices with the next seed.
		data := gen.Generate(i%n, *seed+uint64(i/n))
		if err := events.WriteRunFile(ctx, path, events.DefaultSchema, data); err != nil {
			log.Fatalf("failed to write %s: %v", path, err)
		}
		if i < n {
			sin[i] = id
		} else {
			sout[i-n] = id
		}
		if (i+1)%10 == 0 {
			log.Printf("%d/%d runs", i+1, total)
		}
	}

	cfg := config.New("synthetic runs", runConfig(prefix, suffix, sin, sout))
	var buf bytes.Buffer
	name := "runs.cmnd"
	if *asYAML {
		name = "runs.yaml"
		err = cfg.WriteYAML(&buf)
	} else {
		err = cfg.WriteCmnd(&buf)
	}
	if err != nil {
		log.Fatalf("failed to encode config: %v", err)
	}
	cfgPath := filepath.Join(dir, name)
	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		log.Fatalf("failed to write %s: %v", cfgPath, err)
	}
	log.Printf("✓ Created %d runs and %s", total, cfgPath)
}

// runConfig splits each run list in half and sets every detector key,
// including the per-detector list overrides.
func runConfig(prefix, suffix string, sin, sout []int) map[string]string {
	half := len(sin) / 2
	values := map[string]string{
		"prefix": prefix,
		"suffix": suffix,
		"Sin":    joinInts(sin),
		"Sin1":   joinInts(sin[:half]),
		"Sin2":   joinInts(sin[half:]),
		"Sout":   joinInts(sout),
		"Sout1":  joinInts(sout[:half]),
		"Sout2":  joinInts(sout[half:]),
	}
	// Detectors 1 and 8 skip the first run of the second half.
	values["Sin_DET1"] = joinInts(append(append([]int(nil), sin[:half]...), sin[half+1:]...))
	values["Sin2_DET1"] = joinInts(sin[half+1:])
	values["Sin_DET8"] = values["Sin_DET1"]
	values["Sin1_DET8"] = values["Sin1"]

	for _, det := range config.DetectorIDs() {
		values[fmt.Sprintf("cut_a_det%d", det)] = "2000"
	}
	return values
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
