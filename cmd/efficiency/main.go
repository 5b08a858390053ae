// Command efficiency computes the per-run detection efficiency of one
// detector and run type, with sub-group control bands, and writes the
// efficiency graph and distribution histogram.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/calibration.report/internal/pipeline"
	"github.com/banshee-data/calibration.report/internal/version"
)

func main() {
	flags := pipeline.NewFlags(flag.CommandLine)
	flag.Parse()

	if flags.ShowVersion() {
		fmt.Println("efficiency", version.String())
		return
	}
	if err := run(flags); err != nil {
		log.Fatalf("efficiency: %v", err)
	}
}

func run(flags *pipeline.Flags) error {
	opts, err := flags.Options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.RunEfficiency(ctx, opts)
	if err != nil {
		return err
	}
	for _, g := range res.Efficiency.Groups {
		log.Printf("%s: n=%d mean=%.4g stddev=%.4g band=[%.4g, %.4g]",
			g.Name, g.Stats.N, g.Stats.Mean, g.Stats.StdDev, g.Band.Lower, g.Band.Upper)
	}
	if n := len(res.Efficiency.Dropped); n > 0 {
		log.Printf("%d runs with non-finite efficiency excluded from the group statistics", n)
	}
	for _, p := range res.Artifacts {
		log.Printf("✓ %s", p)
	}
	return nil
}
