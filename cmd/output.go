package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/response"
)

// writeResponse renders resp as json, yaml or text.
func writeResponse(w io.Writer, resp response.Response, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "text":
		_, err := io.WriteString(w, response.Text(resp))
		return err
	default:
		return eris.Errorf("unknown output format %q (json, yaml, text)", format)
	}
}

// attachDiagramURL signs the diagram path on resp. Signing failures are
// logged; the path is still reported.
func attachDiagramURL(ctx context.Context, blobs blob.Store, resp *response.Response, ttl time.Duration) {
	if blobs == nil || resp.DiagramPath == "" {
		return
	}
	u, err := blobs.GetSignedURL(ctx, resp.DiagramPath, ttl)
	if err != nil {
		zap.L().Warn("sign diagram url", zap.String("path", resp.DiagramPath), zap.Error(err))
		return
	}
	resp.DiagramURL = u
}
