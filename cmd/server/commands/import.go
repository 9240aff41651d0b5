package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bonairerentalhub/server/internal/importer"
)

var (
	onDuplicate string
	resume      bool
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import listings from a CSV or XLSX file",
	Long: `Import listings from a CSV or XLSX file into the configured store.
When a row's name already exists the duplicate is resolved with --on-duplicate,
or interactively when it is "ask".`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&onDuplicate, "on-duplicate", "ask", "how to resolve duplicate names: ask, create, merge or ignore")
	importCmd.Flags().BoolVar(&resume, "resume", false, "keep importing the remaining rows after a duplicate is resolved")
	rootCmd.AddCommand(importCmd)
}

// decider chooses what to do with a duplicate row
type decider func(pending *importer.DuplicateDecision) (importer.Decision, error)

func newDecider(mode string, in io.Reader, out io.Writer) (decider, error) {
	if strings.EqualFold(strings.TrimSpace(mode), "ask") {
		return promptDecider(in, out), nil
	}

	decision, err := importer.ParseDecision(mode)
	if err != nil {
		return nil, err
	}
	return func(*importer.DuplicateDecision) (importer.Decision, error) {
		return decision, nil
	}, nil
}

func promptDecider(in io.Reader, out io.Writer) decider {
	scanner := bufio.NewScanner(in)
	return func(pending *importer.DuplicateDecision) (importer.Decision, error) {
		for {
			fmt.Fprintf(out, "%q already exists (row %d). [c]reate, [m]erge or [i]gnore? ", pending.DuplicateName, pending.Row)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return "", err
				}
				return "", io.ErrUnexpectedEOF
			}

			switch answer := strings.ToLower(strings.TrimSpace(scanner.Text())); answer {
			case "c":
				return importer.DecisionCreate, nil
			case "m":
				return importer.DecisionMerge, nil
			case "i":
				return importer.DecisionIgnore, nil
			default:
				if d, err := importer.ParseDecision(answer); err == nil {
					return d, nil
				}
			}
		}
	}
}

// runBatch imports one file, asking decide for every duplicate until the
// batch completes. If no decision can be obtained the batch is abandoned.
func runBatch(ctx context.Context, imp *importer.Importer, filename string, r io.Reader, decide decider) (*importer.Result, error) {
	result, err := imp.Start(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	for result.State == importer.StateAwaitingDecision {
		decision, err := decide(result.Pending)
		if err != nil {
			if _, abandonErr := imp.Abandon(); abandonErr != nil && !errors.Is(abandonErr, importer.ErrNoPendingDecision) {
				return nil, abandonErr
			}
			return nil, fmt.Errorf("failed to read decision: %w", err)
		}

		result, err = imp.Resolve(ctx, decision)
		if err != nil {
			if _, abandonErr := imp.Abandon(); abandonErr != nil && !errors.Is(abandonErr, importer.ErrNoPendingDecision) {
				return nil, abandonErr
			}
			return nil, err
		}
	}
	return result, nil
}

func printResult(out io.Writer, result *importer.Result) {
	fmt.Fprintf(out, "Batch %s\n", result.BatchID)
	fmt.Fprintf(out, "  saved:         %d\n", len(result.Persisted))
	fmt.Fprintf(out, "  categories:    %d\n", len(result.Categories))
	fmt.Fprintf(out, "  skipped:       %d\n", result.Skipped)
	fmt.Fprintf(out, "  failed:        %d\n", len(result.Failed))
	fmt.Fprintf(out, "  not processed: %d\n", result.Unprocessed)
	for _, f := range result.Failed {
		switch {
		case f.Listing != "":
			fmt.Fprintf(out, "  ! row %d %s: %s\n", f.Row, f.Listing, f.Error)
		default:
			fmt.Fprintf(out, "  ! %s\n", f.Error)
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	decide, err := newDecider(onDuplicate, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("resume") {
		cfg.Import.ResumeAfterDecision = resume
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := runBatch(cmd.Context(), a.importer, filepath.Base(args[0]), file, decide)
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), result)
	return nil
}
