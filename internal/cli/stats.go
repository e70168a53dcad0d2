package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the index holds",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	logger := GetLogger()

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg, embedder, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	stats := idx.Stats()
	if statsJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Index:      %s\n", cfg.Index.Path)
	fmt.Printf("Chunks:     %d\n", stats.Chunks)
	fmt.Printf("Model:      %s (dim %d)\n", stats.Model, stats.Dimension)
	if !stats.BuiltAt.IsZero() {
		fmt.Printf("Built at:   %s\n", stats.BuiltAt.Format("2006-01-02 15:04:05 MST"))
	}

	depts := make([]string, 0, len(stats.ByDepartment))
	for d := range stats.ByDepartment {
		depts = append(depts, d)
	}
	sort.Strings(depts)
	for _, d := range depts {
		fmt.Printf("  %-12s  %d\n", d, stats.ByDepartment[d])
	}
	return nil
}
