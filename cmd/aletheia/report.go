package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zombar/aletheia/internal/models"
	"github.com/zombar/aletheia/internal/report"
)

func newReportCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report [text|-]",
		Short: "Classify a text and render a report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := readTexts(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			result, err := opts.classifier.Analyze(texts[0])
			if err != nil {
				return err
			}

			body, _, err := report.Render(format, &models.Analysis{
				ID:        uuid.NewString(),
				OwnerID:   "cli",
				Text:      texts[0],
				Result:    result,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", report.FormatMarkdown,
		fmt.Sprintf("Report format (%s)", strings.Join(report.Formats(), ", ")))
	return cmd
}
