// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fusion_catalog prints the contents of a catalog snapshot, saved with store.Store.Save or
// store.Store.SaveTo.
//
// Usage:
//
//	fusion_catalog [-ops] <snapshot file | gs://bucket/key>
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/fusion/pkg/core/ops"
	"github.com/gomlx/fusion/pkg/fusion/store"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", true, "Display a summary of the snapshot.")
	flagList    = flag.Bool("list", true, "Lists the optimizations of the catalog.")
	flagOps     = flag.Bool("ops", false, "Lists every operation of every optimization.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing catalog snapshot to read from. See 'fusion_catalog -help'")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'fusion_catalog -help'.")
		os.Exit(1)
	}
	contents := must.M1(readSource(context.Background(), args[0]))
	snapshot := must.M1(store.ReadSnapshot(bytes.NewReader(contents)))
	report(os.Stdout, args[0], len(contents), snapshot)
}

// readSource reads the whole snapshot from a local file or, if source is a "gs://bucket/key" URL, from GCS.
func readSource(ctx context.Context, source string) ([]byte, error) {
	if rest, found := strings.CutPrefix(source, "gs://"); found {
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return nil, errors.Errorf("invalid GCS location %q, expected gs://<bucket>/<key>", source)
		}
		blobs := &store.GCSBlobstore{Bucket: bucket}
		r, err := blobs.Download(ctx, key)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		contents, err := io.ReadAll(r)
		return contents, errors.Wrapf(err, "reading %q", source)
	}
	contents, err := os.ReadFile(source)
	return contents, errors.Wrapf(err, "reading %q", source)
}

// pattern returns the op types of the sequence joined by "+", e.g. "Add+MulScalar".
func pattern(sequence []ops.Op) string {
	parts := make([]string, len(sequence))
	for ii, op := range sequence {
		parts[ii] = op.Type().String()
	}
	return strings.Join(parts, "+")
}

func report(w io.Writer, source string, size int, snapshot *store.Snapshot) {
	if *flagSummary {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Summary"))
		table := newPlainTable(false, lipgloss.Right, lipgloss.Left)
		table.Row("snapshot", source)
		table.Row("size", humanize.Bytes(uint64(size)))
		table.Row("store", snapshot.StoreID)
		table.Row("backend", snapshot.Backend)
		table.Row("device", fmt.Sprintf("#%d", snapshot.Device))
		table.Row("# optimizations", humanize.Comma(int64(len(snapshot.Records))))
		table.Row("# starting ops", humanize.Comma(int64(snapshot.Index.Len())))
		table.Row("# hash buckets", humanize.Comma(int64(snapshot.Index.NumBuckets())))
		_, _ = fmt.Fprintln(w, table.Render())
	}

	if *flagList {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Optimizations"))
		table := newPlainTable(true, lipgloss.Right, lipgloss.Right, lipgloss.Left)
		table.Headers("ID", "Length", "Pattern", "Shape")
		for ii, sequence := range snapshot.Records {
			table.Row(fmt.Sprintf("#%d", ii), humanize.Comma(int64(len(sequence))), pattern(sequence),
				sequence[0].Output().Shape.String())
		}
		_, _ = fmt.Fprintln(w, table.Render())
	}

	if *flagOps {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Operations"))
		table := newPlainTable(true, lipgloss.Right, lipgloss.Right, lipgloss.Left)
		table.Headers("ID", "#", "Operation")
		for ii, sequence := range snapshot.Records {
			for jj, op := range sequence {
				table.Row(fmt.Sprintf("#%d", ii), fmt.Sprintf("%d", jj), op.String())
			}
		}
		_, _ = fmt.Fprintln(w, table.Render())
	}
}
