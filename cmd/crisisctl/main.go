package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/mindease/internal/crisis"
	"github.com/suPer8Hu/mindease/internal/logging"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const outputFlag = "output"

func main() {
	root := newRootCommand(os.Stdout)
	if err := root.Execute(); err != nil {
		log.Fatalf("crisisctl: %v", err)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var logLevel string
	logger := zap.NewNop()

	rootCmd := &cobra.Command{
		Use:   "crisisctl",
		Short: "Inspect and exercise the crisis lexicon",
		Long: `crisisctl validates crisis lexicon files, classifies sample text the
same way the chat server does, and prints the resource block shown to users.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(logLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug,info,warn,error)")

	loggerFn := func() *zap.Logger { return logger }
	rootCmd.AddCommand(
		NewCheckCommand(loggerFn),
		NewClassifyCommand(loggerFn),
		NewResourcesCommand(),
	)
	return rootCmd
}

// NewCheckCommand parses a lexicon file (or the embedded one) and reports its size.
func NewCheckCommand(logger func() *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a crisis lexicon file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lex := crisis.Default()
			source := "embedded"
			if len(args) == 1 {
				var err error
				lex, err = crisis.LoadFile(args[0])
				if err != nil {
					return err
				}
				source = args[0]
			}
			stats := lex.Stats()
			logger().Info("lexicon loaded", zap.String("source", source), zap.Int("crisis", stats.Crisis))
			return render(cmd, stats, func(w io.Writer) {
				fmt.Fprintf(w, "%s: ok (%d crisis, %d imminence, %d venting phrases, %d hotlines)\n",
					source, stats.Crisis, stats.Imminence, stats.Venting, stats.Hotlines)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

// NewClassifyCommand runs the classifier over the given text.
func NewClassifyCommand(logger func() *zap.Logger) *cobra.Command {
	var lexiconPath string
	cmd := &cobra.Command{
		Use:   "classify <text...>",
		Short: "Classify text against the crisis lexicon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lex := crisis.Default()
			if lexiconPath != "" {
				var err error
				lex, err = crisis.LoadFile(lexiconPath)
				if err != nil {
					return err
				}
			}
			res := lex.Classify(strings.Join(args, " "))
			logger().Debug("classified", zap.String("level", string(res.Level)), zap.Strings("matched", res.Matched))
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "level: %s\n", res.Level)
				if res.Severity != crisis.SeverityNone {
					fmt.Fprintf(w, "severity: %s\n", res.Severity)
				}
				if len(res.Matched) > 0 {
					fmt.Fprintf(w, "matched: %s\n", strings.Join(res.Matched, ", "))
				}
				if actions := res.Actions(); len(actions) > 0 {
					fmt.Fprintf(w, "actions: %s\n", strings.Join(actions, ", "))
				}
			})
		},
	}
	cmd.Flags().StringVar(&lexiconPath, "lexicon", "", "Path to a lexicon YAML file (default: embedded)")
	addOutputFlag(cmd)
	return cmd
}

func NewResourcesCommand() *cobra.Command {
	var severity string
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Print the crisis resource block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sev := crisis.Severity(severity)
			switch sev {
			case crisis.SeverityLow, crisis.SeverityModerate, crisis.SeverityHigh, crisis.SeverityImminent:
			default:
				return fmt.Errorf("invalid severity: %s", severity)
			}
			fmt.Fprintln(cmd.OutOrStdout(), crisis.Default().Resources(sev))
			return nil
		},
	}
	cmd.Flags().StringVar(&severity, "severity", string(crisis.SeverityHigh), "Severity (low,moderate,high,imminent)")
	return cmd
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP(outputFlag, "o", "", "Output format; available options are 'yaml' and 'json'")
}

func render(cmd *cobra.Command, v any, text func(io.Writer)) error {
	of, err := cmd.Flags().GetString(outputFlag)
	if err != nil {
		return fmt.Errorf("error accessing flag %s for command %s: %w", outputFlag, cmd.Name(), err)
	}
	w := cmd.OutOrStdout()
	switch of {
	case "":
		text(w)
	case "yaml":
		y, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(y))
	case "json":
		j, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(j))
	default:
		return fmt.Errorf("invalid output format: %s", of)
	}
	return nil
}
