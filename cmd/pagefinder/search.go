package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nainya/pagefinder/pkg/tables"
)

type searchFlags struct {
	dbPath        *string
	minConfidence *float64
	docs          *string
}

func addSearchFlags(fs *flag.FlagSet, a *app) searchFlags {
	return searchFlags{
		dbPath:        fs.String("db", a.cfg.DBPath, "Database file path"),
		minConfidence: fs.Float64("min-confidence", a.cfg.MinConfidence, "Minimum page score for a page to qualify"),
		docs:          fs.String("docs", "", "Comma-separated document ids; all documents when empty"),
	}
}

func (f searchFlags) search(ctx context.Context, a *app) ([]tables.TableSearchResult, error) {
	if !(*f.minConfidence >= 0 && *f.minConfidence <= 1) {
		return nil, fmt.Errorf("min-confidence must be in [0, 1], got %v", *f.minConfidence)
	}
	a.cfg.DBPath = *f.dbPath
	engine, err := a.newEngine(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range strings.Split(*f.docs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return engine.SearchAllDocuments(ctx, ids, *f.minConfidence)
}

func runFind(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	sf := addSearchFlags(fs, a)
	asJSON := fs.Bool("json", false, "Print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	results, err := sf.search(ctx, a)
	if err != nil {
		return err
	}
	summary := tables.Summarize(results)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(summary)
	return nil
}

func printSummary(s tables.Summary) {
	fmt.Printf("Documents with tables: %d\n", s.TotalDocumentsSearched)
	fmt.Printf("Tables found: %d\n", s.TotalTablesFound)

	names := make([]string, 0, len(s.TablesByType))
	for name := range s.TablesByType {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		occ := s.TablesByType[name]
		fmt.Printf("\n%s (%d)\n", name, occ.TotalOccurrences)
		for _, d := range occ.FoundInDocuments {
			fmt.Printf("  %-40s pages %v  confidence %.3f\n", d.Document, d.Pages, d.Confidence)
		}
	}
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := addSearchFlags(fs, a)
	format := fs.String("format", "", "json or xlsx; taken from the output extension when empty")
	out := fs.String("out", "table_search_results.json", "Output location")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format == "" {
		*format = "json"
		if strings.HasSuffix(strings.ToLower(*out), ".xlsx") {
			*format = "xlsx"
		}
	}

	results, err := sf.search(ctx, a)
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		err = tables.WriteJSON(ctx, a.fs, *out, results)
	case "xlsx":
		err = tables.WriteXLSX(ctx, a.fs, *out, results)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}
	a.log.Info("Results exported").
		Str("format", *format).
		Str("location", *out).
		Int("results", len(results)).
		Send()
	return nil
}

func runAnalyze(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("analyze takes exactly one results file, got %d", fs.NArg())
	}
	records, err := tables.LoadJSON(ctx, a.fs, fs.Arg(0))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tables.Consolidate(records))
}
