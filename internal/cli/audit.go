package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"rolerag/internal/usecase"
)

var auditQueries []string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run sample queries as every role and check for access leaks",
	Long: `Run each query as every role against the index, report retrieval quality
per role, and fail if any role received a chunk outside its scope.

Examples:
  rolerag audit
  rolerag audit -q "revenue" -q "leave policy"`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringArrayVarP(&auditQueries, "query", "q", nil, "query to run (repeatable, default is a built-in set)")
}

func runAudit(cmd *cobra.Command, args []string) error {
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

	retriever := usecase.NewRetriever(idx, newQueryEmbedder(embedder, cfg.Retrieve), retrieveOptions(cfg.Retrieve), logger)
	report, err := usecase.Audit(cmd.Context(), retriever, auditQueries)
	if err != nil {
		return err
	}

	fmt.Println("ACCESS AUDIT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("%-12s %8s %8s %9s %8s %10s %10s\n", "role", "queries", "no data", "fallback", "chunks", "avg top", "avg time")
	for _, a := range report.Roles {
		fmt.Printf("%-12s %8d %8d %9d %8d %10.3f %10s\n",
			a.Role, a.Queries, a.NoData, a.Fallbacks, a.Chunks, a.AvgTopScore(), a.AvgLatency().Round(time.Microsecond))
	}
	fmt.Println(strings.Repeat("=", 70))

	leaks := report.Leaks()
	if len(leaks) == 0 {
		fmt.Println("Status: OK - no role received chunks outside its scope")
		return nil
	}
	for _, l := range leaks {
		fmt.Printf("LEAK: %s\n", l)
	}
	return fmt.Errorf("%d access leaks found", len(leaks))
}
