package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/meigma/zpack/ops"
)

// errCorrupt is returned by t when any entry fails verification.
var errCorrupt = errors.New("archive has corrupt entries")

func printSummary(e *env, verb string, sum ops.Summary) {
	fmt.Fprintf(e.stdout, "-- %s %s: %d files, %d bytes (%.2f%% of %d)\n",
		verb, e.archive, sum.Files, sum.Size, sum.Ratio()*100, sum.UncompSize)
}

func runCreate(ctx context.Context, e *env) error {
	sum, err := ops.Create(ctx, e.archive, e.args, e.opts...)
	if err != nil {
		return err
	}
	printSummary(e, "Created", sum)
	return nil
}

func runAdd(ctx context.Context, e *env) error {
	sum, err := ops.Add(ctx, e.archive, e.args, e.opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "-- Added %d files, skipped %d\n", sum.Added, sum.Skipped)
	printSummary(e, "Updated", sum)
	return nil
}

func runExtract(ctx context.Context, e *env) error {
	return extract(ctx, e, true)
}

func runExtractFull(ctx context.Context, e *env) error {
	return extract(ctx, e, false)
}

func extract(ctx context.Context, e *env, flatten bool) error {
	opts := append(e.opts, ops.WithFlatten(flatten)) //nolint:gocritic // e.opts is not reused
	res, err := ops.Extract(ctx, e.archive, e.args, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "-- Extracted %d files, %d bytes\n", res.Files, res.Bytes)
	return nil
}

const rowSeparator = "------------ ------------ --------  ------------------------\n"

func runList(ctx context.Context, e *env) error {
	listing, err := ops.List(ctx, e.archive, e.opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%12s %12s %8s  %s\n%s", "Size", "Compressed", "Method", "Name", rowSeparator)
	for _, entry := range listing.Entries {
		fmt.Fprintf(e.stdout, "%12d %12d %8s  %s\n", entry.UncompSize, entry.CompSize, entry.Method, entry.Filename)
	}
	fmt.Fprintf(e.stdout, "%s%12d %12d  %d files\n", rowSeparator, listing.UncompSize, listing.CompSize, len(listing.Entries))
	return nil
}

func runDelete(ctx context.Context, e *env) error {
	sum, err := ops.Delete(ctx, e.archive, e.args, e.opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "-- Removed %d files\n", sum.Removed)
	printSummary(e, "Updated", sum)
	return nil
}

func runMove(ctx context.Context, e *env) error {
	if len(e.args)%2 != 0 {
		return fmt.Errorf("%w: move takes old and new names in pairs", errUsage)
	}
	renames := make([]ops.Rename, 0, len(e.args)/2)
	for i := 0; i < len(e.args); i += 2 {
		renames = append(renames, ops.Rename{Old: e.args[i], New: e.args[i+1]})
	}
	sum, err := ops.Move(ctx, e.archive, renames, e.opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "-- Renamed %d files\n", sum.Renamed)
	return nil
}

func runTest(ctx context.Context, e *env) error {
	report, err := ops.Test(ctx, e.archive, e.opts...)
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		fmt.Fprintf(e.stdout, "FAILED %s: %v\n", f.Name, f.Err)
	}
	fmt.Fprintf(e.stdout, "-- %d files checked, %d corrupt\n", report.Checked, report.Corrupt)
	if !report.OK() {
		return fmt.Errorf("%w: %w", errCorrupt, report.Failures[0].Err)
	}
	return nil
}
