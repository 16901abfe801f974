package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/response"
)

var (
	runOutput     string
	runDiagramOut string
)

var runCmd = &cobra.Command{
	Use:   "run <statement.pdf>",
	Short: "Run the pipeline on a single statement",
	Long:  "Parses the statement, extracts flows, renders the diagram and verifies it, regenerating up to the configured attempt limit.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("processing statement", zap.String("file", args[0]), zap.Int("bytes", len(data)))

		result := env.Pipeline.Run(ctx, data)
		return emitResult(ctx, cmd.OutOrStdout(), env.Blobs, result, runOutput, runDiagramOut)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "json", "output format: json, yaml, text")
	runCmd.Flags().StringVar(&runDiagramOut, "diagram-out", "", "write the final diagram image to this path")
	rootCmd.AddCommand(runCmd)
}

// emitResult writes the diagram file (when requested) and the formatted
// response. A failed run is reported and then returned as an error.
func emitResult(ctx context.Context, w io.Writer, blobs blob.Store, result *model.PipelineResult, format, diagramOut string) error {
	if diagramOut != "" && len(result.Diagram) > 0 {
		if err := os.WriteFile(diagramOut, result.Diagram, 0o644); err != nil {
			return eris.Wrapf(err, "write diagram %s", diagramOut)
		}
	}

	resp := response.FormatResult(result)
	resp.Diagram = nil
	attachDiagramURL(ctx, blobs, &resp, urlTTL())

	if err := writeResponse(w, resp, format); err != nil {
		return err
	}
	if result.Error != nil {
		return eris.Errorf("run %s failed at %s: %s", result.RunID, result.Error.Stage, result.Error.Message)
	}
	return nil
}
