package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/drift"
	"github.com/zombar/aletheia/internal/models"
	"github.com/zombar/aletheia/internal/report"
)

type classifyOutput struct {
	Text   string                 `json:"text"`
	Result *models.Classification `json:"result,omitempty"`
	Drift  *models.Drift          `json:"drift,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func newClassifyCmd(opts *options) *cobra.Command {
	var (
		asJSON  bool
		subject string
	)

	cmd := &cobra.Command{
		Use:   "classify [text...|-]",
		Short: "Classify one or more texts",
		Long: `Classify each argument as a separate text, or stdin when no argument or "-" is given.
With --subject the texts are treated as successive statements by one speaker and drift is reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := readTexts(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			outputs, err := classifyAll(cmd.Context(), opts.classifier, texts)
			if err != nil {
				return err
			}

			if subject != "" {
				tracker := drift.NewTracker(drift.DefaultConfig())
				for i := range outputs {
					if outputs[i].Result == nil {
						continue
					}
					d, _ := tracker.Track(subject, *outputs[i].Result)
					outputs[i].Drift = &d
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outputs); err != nil {
					return err
				}
			} else {
				for i, o := range outputs {
					if i > 0 {
						fmt.Fprintln(out)
					}
					printClassification(out, o)
				}
			}

			for _, o := range outputs {
				if o.Error != "" {
					return fmt.Errorf("some texts were rejected")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&subject, "subject", "", "Track drift across the texts for this subject")
	return cmd
}

// classifyAll classifies texts concurrently; outputs keep the input order.
// Rejected texts carry their error rather than failing the batch.
func classifyAll(ctx context.Context, c *classifier.Classifier, texts []string) ([]classifyOutput, error) {
	outputs := make([]classifyOutput, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outputs[i].Text = text
			result, err := c.Analyze(text)
			if err != nil {
				outputs[i].Error = err.Error()
				return nil
			}
			outputs[i].Result = &result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func statusColor(r models.Classification) *color.Color {
	switch {
	case r.Flagged:
		return color.New(color.FgRed, color.Bold)
	case r.Indices.Risk >= 5:
		return color.New(color.FgRed)
	case r.Indices.Risk >= 3:
		return color.New(color.FgYellow)
	case r.Indices.Truth >= 6:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgCyan)
	}
}

func printClassification(w io.Writer, o classifyOutput) {
	if o.Error != "" {
		color.New(color.FgRed).Fprintf(w, "rejected: %s\n", o.Error)
		return
	}

	r := *o.Result
	statusColor(r).Fprintf(w, "%s", r.Status)
	fmt.Fprintf(w, "  risk %s  confidence %.0f%%\n", r.RiskLevel, r.Confidence*100)
	if d := o.Drift; d != nil && !d.Baseline {
		fmt.Fprintf(w, "drift %.2f %s (stability %.2f)", d.Drift, d.Direction, d.Stability)
		if d.Prediction != nil {
			fmt.Fprintf(w, "  next truth %.2f (%s)", d.Prediction.NextTruth, d.Prediction.Confidence)
		}
		fmt.Fprintln(w)
	}
	report.WriteScoreTable(w, r)

	for _, warn := range r.Warnings {
		color.New(color.FgYellow).Fprintf(w, "! %s\n", warn)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "> %s\n", rec)
	}
	if o.Drift != nil {
		for _, rec := range o.Drift.Recommendations {
			fmt.Fprintf(w, "> %s\n", rec)
		}
	}
}
