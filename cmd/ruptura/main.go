// Command ruptura runs one report batch from the command line: it scans a
// directory for store databases, transforms and consolidates them, and
// writes the report file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"ruptura/internal/category"
	"ruptura/internal/config"
	"ruptura/internal/extract"
	"ruptura/internal/logging"
	"ruptura/internal/report"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "", "directory scanned recursively for store databases")
	kindFlag := flag.String("report", "produtos", "report to build: produtos or ruptura")
	formatFlag := flag.String("format", "xlsx", "export format: xlsx, csv or parquet")
	flag.Parse()

	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer closeLog()

	var kind report.Kind
	switch *kindFlag {
	case "produtos":
		kind = report.KindProdutos
	case "ruptura":
		kind = report.KindRuptura
	default:
		return fmt.Errorf("unknown report %q (want produtos or ruptura)", *kindFlag)
	}
	format := report.Format(*formatFlag)
	if !format.Valid() {
		return fmt.Errorf("unknown format %q (want xlsx, csv or parquet)", *formatFlag)
	}

	root := *dir
	if root == "" {
		root = "."
	}
	files := flag.Args()
	if len(files) == 0 {
		files, err = extract.ScanDir(root, cfg.Report.ScanExt)
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s files under %s", cfg.Report.ScanExt, root)
	}

	creds := cfg.Athena.Credentials()
	if kind == report.KindProdutos && !creds.Complete() {
		return fmt.Errorf("product reports need the remote query credentials configured")
	}

	extractor := extract.New()
	transformer := report.NewTransformer(extractor)
	cache := category.NewCache(cfg.Cache.Path, category.NewAthenaFetcher(creds))
	exporter := report.NewExporter(cfg.Report.OutputDir)
	runner := report.NewRunner(transformer, cache, exporter, slog.Default())

	req := report.Request{Kind: kind, Files: files, Format: format}
	_, err = runner.Run(context.Background(), req, func(ev report.Event) {
		fmt.Printf("[%d] %s\n", ev.Index, ev.Message)
	})
	return err
}
