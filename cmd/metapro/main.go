package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"metapro/internal/bootstrap"
	"metapro/internal/config"
	"metapro/internal/domain"
	"metapro/internal/infra"
	"metapro/internal/pipeline"
	"metapro/internal/report"
)

func main() {
	var (
		inDir     string
		outDir    string
		recoverID string
	)
	flag.StringVar(&inDir, "in", "", "Directory with the images and SVG files to process")
	flag.StringVar(&outDir, "out", ".", "Directory that receives report.csv and archive.zip")
	flag.StringVar(&recoverID, "recover", "", "Rebuild the report of an interrupted run from its partial results")
	flag.Parse()

	if inDir == "" && recoverID == "" {
		fmt.Fprintln(os.Stderr, "either -in or -recover is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "metapro").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble pipeline")
	}
	defer deps.Close()

	if recoverID != "" {
		err = recoverRun(ctx, deps.Pipeline, recoverID, outDir)
	} else {
		err = run(ctx, deps.Pipeline, inDir, outDir)
	}
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		deps.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, p *pipeline.Pipeline, inDir, outDir string) error {
	items, err := collectInputs(inDir)
	if err != nil {
		return err
	}
	result, err := p.Run(ctx, items)
	if err != nil {
		var qe *domain.QuotaError
		if errors.As(err, &qe) {
			return fmt.Errorf("%w (remaining %d)", err, qe.Remaining())
		}
		return err
	}

	csvData, err := result.Report.CSV()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, pipeline.ReportFile), csvData, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, pipeline.ArchiveFile), result.Archive, 0o644); err != nil {
		return err
	}

	fmt.Printf("run %s: %d of %d processed in %s\n", result.RunID, result.Report.Succeeded, len(items), result.Duration.Round(time.Millisecond))
	for _, f := range result.Report.Failures {
		fmt.Printf("  failed %s (%s): %s\n", f.Filename, f.Stage, f.Error)
	}
	if result.ArchiveURL != "" {
		fmt.Printf("archive: %s\n", result.ArchiveURL)
	}
	return nil
}

func recoverRun(ctx context.Context, p *pipeline.Pipeline, runID, outDir string) error {
	outcomes, err := p.Recover(ctx, runID)
	if err != nil {
		return err
	}
	rep := report.FromOutcomes(outcomes)
	csvData, err := rep.CSV()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(outDir, runID+"-"+pipeline.ReportFile)
	if err := os.WriteFile(name, csvData, 0o644); err != nil {
		return err
	}
	fmt.Printf("recovered %d item(s) of run %s (%d succeeded) into %s\n", len(outcomes), runID, rep.Succeeded, name)
	return nil
}

// collectInputs reads the regular files of dir in name order. Hidden files
// are skipped; unsupported formats are kept so they show up as item failures.
func collectInputs(dir string) ([]domain.SourceItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	items := make([]domain.SourceItem, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		items = append(items, domain.NewSourceItem(i, name, data))
	}
	return items, nil
}
