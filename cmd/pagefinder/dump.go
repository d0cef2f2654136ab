package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"

	"github.com/viant/afs/file"

	"github.com/nainya/pagefinder/pkg/location"
)

func runDump(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	dbPath := fs.String("db", a.cfg.DBPath, "Database file path")
	out := fs.String("out", "pages_export.xlsx", "Output location")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.cfg.DBPath = *dbPath

	store, err := a.openStore()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := store.DumpXLSX(&buf); err != nil {
		return err
	}
	URL, err := location.Normalize(*out)
	if err != nil {
		return err
	}
	if err := a.fs.Upload(ctx, URL, file.DefaultFileOsMode, &buf); err != nil {
		return fmt.Errorf("write workbook %s: %w", *out, err)
	}
	a.log.Info("Store dumped").Str("location", *out).Send()
	return nil
}
