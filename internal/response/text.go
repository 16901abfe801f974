package response

import (
	"fmt"
	"strings"
)

// Text renders resp as a human-readable report.
func Text(resp Response) string {
	var b strings.Builder

	title := resp.RunID
	if st := resp.Metadata.Statement; st != nil {
		title = fmt.Sprintf("%s Q%d %d", st.Company, st.Quarter, st.Year)
	}
	if title == "" {
		title = "statement"
	}
	fmt.Fprintf(&b, "# Flow Report: %s\n", title)
	if resp.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", resp.RunID)
	}
	b.WriteString("\n")

	b.WriteString("## Summary\n")
	status := "verified"
	switch {
	case resp.Error != nil:
		status = "failed"
	case !resp.Success:
		status = "not verified"
	}
	fmt.Fprintf(&b, "- Status: %s\n", status)
	fmt.Fprintf(&b, "- Accuracy: %.2f%%\n", resp.Verification.Accuracy*100)
	fmt.Fprintf(&b, "- Flows verified: %d/%d\n", resp.Verification.FlowsVerified, resp.Verification.FlowsTotal)
	p := resp.Metadata.Processing
	fmt.Fprintf(&b, "- Processing: %s (%d retries)\n", p.TimeFormatted, p.Retries)
	if resp.DiagramURL != "" {
		fmt.Fprintf(&b, "- Diagram: %s\n", resp.DiagramURL)
	} else if resp.DiagramPath != "" {
		fmt.Fprintf(&b, "- Diagram: %s\n", resp.DiagramPath)
	}
	b.WriteString("\n")

	if e := resp.Error; e != nil {
		b.WriteString("## Error\n")
		fmt.Fprintf(&b, "- %s at %s: %s\n", e.Code, e.Stage, e.Message)
		fmt.Fprintf(&b, "- Recoverable: %t\n\n", e.Recoverable)
	}

	if len(resp.Flows) > 0 {
		b.WriteString("## Flows\n")
		for _, f := range resp.Flows {
			fmt.Fprintf(&b, "- %s: %.2f (%s)\n", f.Key(), f.Amount, f.Category)
		}
		b.WriteString("\n")
	}

	if len(resp.Verification.Discrepancies) > 0 {
		b.WriteString("## Discrepancies\n")
		for _, d := range resp.Verification.Discrepancies {
			fmt.Fprintf(&b, "- %s: expected %.2f, diagram shows %.2f (%.2f%%)\n",
				d.Flow, d.Expected, d.Actual, float64(d.PercentageError))
		}
		b.WriteString("\n")
	}

	if r := resp.Verification.Reasoning; r != "" {
		b.WriteString("## Reasoning\n")
		b.WriteString(r)
		b.WriteString("\n")
	}

	return b.String()
}
