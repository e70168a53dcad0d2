package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"rolerag/internal/usecase"
)

var ingestQuiet bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [corpus-root]",
	Short: "Rebuild the index from the corpus",
	Long: `Load every department directory under the corpus root, chunk and embed
its documents, and atomically replace the index at index.path.

Examples:
  rolerag ingest                    # Use corpus.root from config
  rolerag ingest ./resources/data   # Ingest a specific tree`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "disable the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	logger := GetLogger()

	root := cfg.Corpus.Root
	if len(args) > 0 {
		root = args[0]
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("corpus root does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus root is not a directory: %s", root)
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg, embedder, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	ingest, err := newIngestUseCase(cfg, embedder, idx, logger)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	var startTime time.Time
	if !ingestQuiet {
		ingest.Progress = func(done, total int) {
			if bar == nil {
				startTime = time.Now()
				bar = progressbar.NewOptions(total,
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowBytes(false),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]=[reset]",
						SaucerHead:    "[green]>[reset]",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
					progressbar.OptionOnCompletion(func() {
						fmt.Println()
					}),
				)
			}
			bar.Set(done)

			elapsed := time.Since(startTime)
			if rate := float64(done) / elapsed.Seconds(); rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	fmt.Printf("Ingesting %s...\n", root)
	result, err := ingest.Ingest(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	printIngestResult(result)
	fmt.Printf("\nIndex stored at: %s\n", cfg.Index.Path)
	return nil
}

func printIngestResult(result *usecase.IngestResult) {
	report := result.Report
	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Departments:    %d\n", report.Departments)
	fmt.Printf("  Files:          %d (%d unsupported)\n", report.Files, report.Skipped)
	fmt.Printf("  Documents:      %d\n", report.Documents)
	fmt.Printf("  Chunks:         %d\n", result.Chunks)
	fmt.Printf("  Duration:       %s\n", formatDuration(result.Duration))

	depts := make([]string, 0, len(result.ByDepartment))
	for d := range result.ByDepartment {
		depts = append(depts, d)
	}
	sort.Strings(depts)
	for _, d := range depts {
		fmt.Printf("    %-12s  %d\n", d, result.ByDepartment[d])
	}

	if len(report.EmptyDepartments) > 0 {
		fmt.Printf("\nSkipped empty departments: %v\n", report.EmptyDepartments)
	}
	if len(report.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range report.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
