package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newLexiconCmd(opts *options) *cobra.Command {
	var showPatterns bool

	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "List the loaded categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := opts.classifier.Table()
			out := cmd.OutOrStdout()

			tw := tablewriter.NewWriter(out)
			tw.SetBorder(false)
			tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			tw.SetAlignment(tablewriter.ALIGN_LEFT)

			if showPatterns {
				tw.SetHeader([]string{"Category", "ID", "Weight", "Severity", "Description"})
				for _, c := range table.Categories() {
					for _, p := range c.Patterns {
						tw.Append([]string{
							c.Name,
							p.ID,
							fmt.Sprintf("%.2f", c.MatchWeight(p)),
							string(p.Severity),
							p.Description,
						})
					}
				}
			} else {
				tw.SetHeader([]string{"Category", "Weight", "Override", "Patterns", "Description"})
				for _, c := range table.Categories() {
					override := ""
					if c.Override {
						override = "yes"
					}
					tw.Append([]string{
						c.Name,
						fmt.Sprintf("%.2f", c.Weight),
						override,
						strconv.Itoa(len(c.Patterns)),
						c.Description,
					})
				}
			}
			tw.Render()

			fmt.Fprintf(out, "\n%d categories, %d patterns\n", len(table.Categories()), table.PatternCount())
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPatterns, "patterns", false, "List every pattern instead of the category summary")
	return cmd
}
