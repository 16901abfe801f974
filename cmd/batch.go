package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/response"
)

var (
	batchDir         string
	batchConcurrency int
	batchOutput      string
)

// runFunc runs the pipeline on one statement buffer.
type runFunc func(ctx context.Context, data []byte) *model.PipelineResult

// batchItem is the outcome for one input file.
type batchItem struct {
	Path   string
	Result *model.PipelineResult
	Err    error
}

var batchCmd = &cobra.Command{
	Use:   "batch [statement.pdf...]",
	Short: "Run the pipeline on many statements concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		paths, err := collectInputs(args, batchDir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.New("batch: no input files (pass paths or --dir)")
		}

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrency
		}

		items, err := processBatch(ctx, paths, concurrency, func(ctx context.Context, data []byte) *model.PipelineResult {
			return env.Pipeline.Run(ctx, data)
		})
		if err != nil {
			return err
		}

		if batchOutput != "" {
			return writeBatchResponses(cmd.OutOrStdout(), items, batchOutput)
		}
		return writeBatchSummary(cmd.OutOrStdout(), items)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "process every .pdf file in this directory")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent runs (default batch.max_concurrency)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "print each response in this format (json, yaml, text) instead of a summary")
	rootCmd.AddCommand(batchCmd)
}

// collectInputs merges explicit paths with the .pdf files found in dir.
// Duplicates are dropped and the result is sorted.
func collectInputs(args []string, dir string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, a := range args {
		add(filepath.Clean(a))
	}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read dir %s", dir)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				continue
			}
			add(filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// processBatch runs every path through run with at most concurrency runs
// in flight. Individual failures are recorded, not returned. Items come
// back in input order.
func processBatch(ctx context.Context, paths []string, concurrency int, run runFunc) ([]batchItem, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	items := make([]batchItem, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, path := range paths {
		items[i].Path = path
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))

			data, err := os.ReadFile(path)
			if err != nil {
				failed.Add(1)
				items[i].Err = eris.Wrapf(err, "read %s", path)
				log.Error("read failed", zap.Error(err))
				return nil
			}

			res := run(gctx, data)
			items[i].Result = res
			if res.Success {
				succeeded.Add(1)
				log.Info("statement verified",
					zap.String("run_id", res.RunID),
					zap.Float64("accuracy", res.Accuracy),
					zap.Int("retries", res.Metadata.Retries),
				)
				return nil
			}

			failed.Add(1)
			if res.Error != nil {
				log.Error("statement failed",
					zap.String("run_id", res.RunID),
					zap.String("code", string(res.Error.Code)),
					zap.String("stage", string(res.Error.Stage)),
					zap.String("message", res.Error.Message),
				)
			} else {
				log.Warn("statement not verified",
					zap.String("run_id", res.RunID),
					zap.Float64("accuracy", res.Accuracy),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return items, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return items, nil
}

// writeBatchSummary prints one row per input.
func writeBatchSummary(w io.Writer, items []batchItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tRUN\tSTATUS\tACCURACY\tRETRIES\tTIME\tERROR")
	for _, it := range items {
		if it.Result == nil {
			fmt.Fprintf(tw, "%s\t-\terror\t-\t-\t-\t%v\n", it.Path, it.Err)
			continue
		}
		res := it.Result
		status, errMsg := "verified", ""
		switch {
		case res.Error != nil:
			status = "failed"
			errMsg = fmt.Sprintf("%s: %s", res.Error.Code, res.Error.Message)
		case !res.Success:
			status = "not verified"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f%%\t%d\t%s\t%s\n",
			it.Path, orDash(res.RunID), status, res.Accuracy*100,
			res.Metadata.Retries, response.FormatDuration(res.Metadata.ProcessingTimeMs), errMsg)
	}
	return tw.Flush()
}

// writeBatchResponses prints the formatted response for each input.
func writeBatchResponses(w io.Writer, items []batchItem, format string) error {
	for _, it := range items {
		var resp response.Response
		if it.Result != nil {
			resp = response.FormatResult(it.Result)
			resp.Diagram = nil
		} else {
			resp = response.FormatError(response.ErrorInfo{
				Code:    model.ErrCodePDF,
				Message: it.Err.Error(),
				Stage:   model.StageParsing,
			}, nil)
		}
		if format == "text" {
			fmt.Fprintf(w, "<!-- %s -->\n", it.Path)
		}
		if err := writeResponse(w, resp, format); err != nil {
			return err
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
