package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/lexicon"
)

// options are shared by every subcommand
type options struct {
	lexiconPath string
	minLength   int
	maxLength   int

	classifier *classifier.Classifier
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "aletheia",
		Short:         "Lexical truth and manipulation classifier",
		Long:          `Aletheia scores text against categorised pattern tables and reports truth, risk and manipulation indices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			table, err := loadTable(opts.lexiconPath)
			if err != nil {
				return fmt.Errorf("failed to load lexicon: %w", err)
			}
			opts.classifier = classifier.New(table, classifier.Config{
				MinLength: opts.minLength,
				MaxLength: opts.maxLength,
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.lexiconPath, "lexicon", "", "YAML category table (defaults to the built-in table)")
	root.PersistentFlags().IntVar(&opts.minLength, "min-length", classifier.DefaultMinLength, "Minimum text length in characters, 0 disables")
	root.PersistentFlags().IntVar(&opts.maxLength, "max-length", classifier.DefaultMaxLength, "Maximum text length in characters, 0 disables")

	root.AddCommand(newClassifyCmd(opts))
	root.AddCommand(newReportCmd(opts))
	root.AddCommand(newLexiconCmd(opts))
	return root
}

func loadTable(path string) (*lexicon.Table, error) {
	if path == "" {
		return lexicon.Default()
	}
	return lexicon.LoadFile(path)
}

// readTexts returns args, or stdin when args are empty or a single "-"
func readTexts(in io.Reader, args []string) ([]string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text := strings.TrimRight(string(b), "\r\n")
		if text == "" {
			return nil, fmt.Errorf("no text given")
		}
		return []string{text}, nil
	}
	return args, nil
}
