// cmd/seba/main.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// seba computes spectral energy budgets of field sets on pressure levels.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/mmp/seba/budget"
	"github.com/mmp/seba/log"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
	"github.com/mmp/seba/wx"

	"github.com/goforj/godump"
	"golang.org/x/sync/errgroup"
)

var (
	jobs              = flag.Int("jobs", 0, "Number of worker goroutines for the transforms (0: number of CPUs)")
	truncation        = flag.Int("truncation", -1, "Triangular truncation (-1: the largest the grid supports)")
	gridType          = flag.String("gridtype", "", "Override the grid type of the input (gaussian or regular)")
	radius            = flag.Float64("radius", 0, "Radius of the sphere in meters (0: Earth)")
	smooth            = flag.Bool("smooth", false, "Smooth the terrain mask")
	meanMode          = flag.String("mean", "global", "Representative mean on pressure levels (global or masked)")
	verticalTransport = flag.Bool("vertical-transport", true, "Include vertical transport in the nonlinear transfers")
	logLevel          = flag.String("loglevel", "info", "Logging level: debug, info, warn, error")
	logDir            = flag.String("logdir", "", "Directory for log files (default: stderr)")
	cpuProfile        = flag.String("cpuprofile", "", "Write a CPU profile to the given file")
	memProfile        = flag.String("memprofile", "", "Write a heap profile to the given file")
	dump              = flag.Bool("dump", false, "Print the configuration and a summary of the results")
	dryRun            = flag.Bool("dryrun", false, "Don't write any output")

	synthKind  = flag.String("kind", wx.SynthJet, "Synthetic atmosphere for synth: "+strings.Join(wx.SynthKinds, ", "))
	synthNLat  = flag.Int("nlat", 64, "Number of latitudes for synth")
	synthNTime = flag.Int("ntime", 1, "Number of times for synth")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: seba [flags] run <fieldset> [results]
       seba [flags] synth <fieldset>
       seba dump <results>
Paths may be local or of the form gs://bucket/key or s3://bucket/key.
where [flags] may be:
`)
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
	}

	lg := log.New(*logLevel, *logDir)

	prof, err := util.StartProfiler(*cpuProfile, *memProfile)
	if err != nil {
		lg.Errorf("%v", err)
	}
	stopProfiler := func() {
		if err := prof.Stop(); err != nil {
			lg.Errorf("%v", err)
		}
	}
	defer stopProfiler()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sb := NewBackends(ctx, *dryRun)
	defer sb.Close()

	switch args[0] {
	case "run":
		if len(args) > 3 {
			usage()
		}
		out := ""
		if len(args) == 3 {
			out = args[2]
		}
		err = run(ctx, sb, args[1], out, lg)
	case "synth":
		if len(args) != 2 {
			usage()
		}
		err = synth(ctx, sb, args[1], lg)
	case "dump":
		if len(args) != 2 {
			usage()
		}
		err = dumpResults(sb, args[1])
	default:
		usage()
	}

	if err != nil {
		lg.Errorf("%s: %v", args[0], err)
		fmt.Fprintf(os.Stderr, "seba: %v\n", err)
		stopProfiler()
		os.Exit(1)
	}
}

func makeConfig(lg *log.Logger) (budget.Config, error) {
	mm, err := budget.ParseMeanMode(*meanMode)
	if err != nil {
		return budget.Config{}, err
	}
	cfg := budget.Config{
		Truncation:        *truncation,
		GridType:          *gridType,
		Radius:            *radius,
		Jobs:              *jobs,
		SmoothTerrain:     *smooth,
		MeanMode:          mm,
		VerticalTransport: *verticalTransport,
		Logger:            lg,
	}
	return cfg, cfg.Validate()
}

func loadFieldSet(sb *Backends, path string) (*wx.FieldSet, error) {
	b, key, err := sb.Get(path)
	if err != nil {
		return nil, err
	}
	r, err := b.OpenRead(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return wx.LoadFieldSet(r)
}

func loadResults(sb *Backends, path string) (*budget.Results, error) {
	b, key, err := sb.Get(path)
	if err != nil {
		return nil, err
	}
	r, err := b.OpenRead(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return budget.LoadResults(r)
}

// resultsPath returns the default output path for the given field set.
func resultsPath(in string) string {
	return strings.TrimSuffix(in, wx.FieldSetFilenameSuffix) + budget.ResultsFilenameSuffix
}

func run(ctx context.Context, sb *Backends, in, out string, lg *log.Logger) error {
	cfg, err := makeConfig(lg)
	if err != nil {
		return err
	}
	if *dump {
		godump.Dump(cfg)
	}

	fs, err := loadFieldSet(sb, in)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	lg.Info("loaded field set", slog.String("path", in), slog.String("fieldset", fs.String()))

	eb, err := budget.New(ctx, fs, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	res, err := eb.EnergyDiagnostics(ctx)
	if err != nil {
		return err
	}
	fluxes, err := eb.NonlinearEnergyFluxes(ctx)
	if err != nil {
		return err
	}
	if err := res.Merge(fluxes); err != nil {
		return err
	}
	lg.Info("computed energy budget", slog.Int("diagnostics", len(res.Names)),
		slog.Duration("elapsed", lg.Elapsed()))

	summary, err := res.SummaryJSON()
	if err != nil {
		return err
	}
	if *dump {
		fmt.Println(string(summary))
	}

	if out == "" {
		out = resultsPath(in)
	}
	summaryPath := strings.TrimSuffix(out, budget.ResultsFilenameSuffix) + ".summary.json"

	// The results and summary may go to a remote bucket; upload them
	// concurrently.
	var eg errgroup.Group
	eg.Go(func() error {
		b, key, err := sb.Get(out)
		if err != nil {
			return err
		}
		n, err := b.StoreObject(key, res)
		if err != nil {
			return fmt.Errorf("%s: %w", out, err)
		}
		lg.Info("stored results", slog.String("path", out), slog.Int64("bytes", n))
		return nil
	})
	eg.Go(func() error {
		b, key, err := sb.Get(summaryPath)
		if err != nil {
			return err
		}
		if _, err := b.Store(key, bytes.NewReader(summary)); err != nil {
			return fmt.Errorf("%s: %w", summaryPath, err)
		}
		return nil
	})
	return eg.Wait()
}

func synth(ctx context.Context, sb *Backends, out string, lg *log.Logger) error {
	gt := sphere.Gaussian
	if *gridType != "" {
		var err error
		if gt, err = sphere.ParseGridType(*gridType); err != nil {
			return err
		}
	}

	fs, err := wx.Synthesize(ctx, wx.SynthOptions{
		Kind:     *synthKind,
		NLat:     *synthNLat,
		NTime:    *synthNTime,
		GridType: gt,
	}, lg)
	if err != nil {
		return err
	}
	if *dump {
		godump.Dump(fs.String())
	}

	b, key, err := sb.Get(out)
	if err != nil {
		return err
	}
	n, err := b.StoreObject(key, fs)
	if err != nil {
		return fmt.Errorf("%s: %w", out, err)
	}
	lg.Info("stored synthetic field set", slog.String("path", out), slog.String("kind", *synthKind),
		slog.Int64("bytes", n))
	return nil
}

func dumpResults(sb *Backends, path string) error {
	res, err := loadResults(sb, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	godump.Dump(res.Layout)
	summary, err := res.SummaryJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(summary))
	return nil
}
