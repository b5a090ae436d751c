package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"bauchermatch/internal/cli"
	"bauchermatch/internal/core"
	"bauchermatch/internal/dashboard"
	applog "bauchermatch/internal/log"
	"bauchermatch/internal/pipeline"
	"bauchermatch/internal/services"
)

func main() {
	var (
		variant  string
		year     int
		showYear bool
		jsonOut  bool
		logLevel string
	)
	flag.StringVar(&variant, "variant", "", "extraction variant: full, full-json or partial (default from EXTRACTION_VARIANT)")
	flag.IntVar(&year, "year", 0, "year shown with -dashboard (default: most recent)")
	flag.BoolVar(&showYear, "dashboard", false, "print the monthly income series after processing")
	flag.BoolVar(&jsonOut, "json", false, "print results as JSON")
	flag.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: bauchermatch-upload [flags] statement.pdf [more.pdf ...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp, logLevel)
	cfg := cli.LoadAndValidateConfig(logger)

	if flag.NArg() == 0 && !showYear {
		flag.Usage()
		os.Exit(2)
	}

	v := cfg.Variant()
	if variant != "" {
		parsed, err := core.ParseVariant(variant)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -variant %q\n", variant)
			os.Exit(2)
		}
		v = parsed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be := cli.InitBackend(ctx, logger, cfg)

	var publisher services.Publisher
	if client := cli.InitAMQP(logger, cfg); client != nil {
		publisher = client
	}

	svc := services.NewStatementService(be.Store, cli.BuildPipelines(cfg, logger), dashboard.NewView(time.Now), publisher, services.Options{
		DuplicatePolicy: cfg.DuplicatePolicy,
		StorageTimeout:  cfg.StorageTimeout,
		Logger:          logger.WithComponent(applog.ComponentService).Slog(),
	})
	svc.Init(ctx)

	failed := 0
	var outcomes []services.Outcome
	for _, path := range flag.Args() {
		out, err := svc.Process(ctx, pipeline.FileSource{Path: path}, v)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s (%v)\n", path, core.UserMessage(err), err)
			continue
		}
		outcomes = append(outcomes, out)
		if !jsonOut {
			fmt.Printf("%s: %s\n", path, out.Message)
			fmt.Printf("  %s %s %d  ingreso=%.2f  movimientos=%d  guardado=%s\n",
				out.Result.Filename, out.Result.Month, out.Result.Year,
				out.Result.Ingreso, out.Result.TotalCount, out.Result.SavedPath)
		}
	}

	var snap *dashboard.Snapshot
	if showYear {
		s := svc.Dashboard(ctx, year)
		snap = &s
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Outcomes  []services.Outcome  `json:"outcomes"`
			Dashboard *dashboard.Snapshot `json:"dashboard,omitempty"`
		}{outcomes, snap})
	} else if snap != nil {
		printSeries(*snap)
	}

	if err := svc.Close(); err != nil {
		logger.Error("Failed to close statement service", applog.FieldError, err)
	}
	if failed > 0 {
		stop()
		os.Exit(1)
	}
}

func printSeries(s dashboard.Snapshot) {
	fmt.Printf("\nIngresos %d (base de datos: años %v)\n", s.Year, s.Years)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, p := range s.Series.Points {
		fmt.Fprintf(tw, "%s\t%.2f\t\n", p.Month, p.Ingreso)
	}
	fmt.Fprintf(tw, "Total\t%.2f\t\n", s.Total)
	_ = tw.Flush()
}
