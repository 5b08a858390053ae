// Command spectra overlays the full amplitude spectra of a range of runs,
// each normalised by its total pulse intensity.
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

var (
	first = flag.Int("first", 0, "index of the first run in the run list")
	last  = flag.Int("last", 1, "index one past the last run")
)

func main() {
	flags := pipeline.NewFlags(flag.CommandLine)
	flag.Parse()

	if flags.ShowVersion() {
		fmt.Println("spectra", version.String())
		return
	}
	if err := run(flags); err != nil {
		log.Fatalf("spectra: %v", err)
	}
}

func run(flags *pipeline.Flags) error {
	opts, err := flags.Options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.RunSpectra(ctx, opts, *first, *last)
	if err != nil {
		return err
	}
	for _, p := range res.Artifacts {
		log.Printf("✓ %s", p)
	}
	return nil
}
