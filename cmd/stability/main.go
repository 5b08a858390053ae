// Command stability tracks the amplitude peak position of one detector and
// run type across runs and writes the stability graph.
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
		fmt.Println("stability", version.String())
		return
	}
	if err := run(flags); err != nil {
		log.Fatalf("stability: %v", err)
	}
}

func run(flags *pipeline.Flags) error {
	opts, err := flags.Options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.RunStability(ctx, opts)
	if err != nil {
		return err
	}
	log.Printf("%d runs, peak position error %.1f channels", len(res.Stability.Positions), res.Stability.QuantizationError)
	for _, p := range res.Artifacts {
		log.Printf("✓ %s", p)
	}
	return nil
}
