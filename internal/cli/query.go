package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"rolerag/internal/policy"
	"rolerag/internal/usecase"
)

var (
	queryText      string
	queryRole      string
	queryJSON      bool
	querySummarize bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask a question as a given role",
	Long: `Retrieve chunks visible to a role and print the answer the chat endpoint
would return.

Examples:
  rolerag query --role finance -q "Q3 revenue"
  rolerag query --role executive -q "hiring plan" --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question (required)")
	queryCmd.Flags().StringVarP(&queryRole, "role", "r", "employee", "role to ask as")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output retrieval result as JSON")
	queryCmd.Flags().BoolVar(&querySummarize, "summarize", false, "run the configured summarizer")
	queryCmd.MarkFlagRequired("query")
}

type queryResultOutput struct {
	Role         string             `json:"role"`
	Scope        string             `json:"scope"`
	UsedFallback bool               `json:"used_fallback"`
	NoData       bool               `json:"no_data"`
	Chunks       []queryChunkOutput `json:"chunks"`
}

type queryChunkOutput struct {
	ID         string  `json:"id"`
	Department string  `json:"department"`
	SourcePath string  `json:"source_path"`
	Offset     int     `json:"offset"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	logger := GetLogger()

	if _, err := os.Stat(cfg.Index.Path); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Run 'rolerag ingest' first", cfg.Index.Path)
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

	retriever := usecase.NewRetriever(idx, embedder, retrieveOptions(cfg.Retrieve), logger)

	if !queryJSON {
		summarizer := newSummarizer(cfg.Summarizer, logger)
		if !querySummarize {
			summarizer = nil
		}
		reply := usecase.NewChatService(retriever, summarizer, logger).Reply(cmd.Context(), queryRole, queryText)
		fmt.Println(reply.Response)
		if len(reply.Sources) > 0 {
			fmt.Printf("\nSources: %v\n", reply.Sources)
		}
		if reply.Err != nil {
			return reply.Err
		}
		return nil
	}

	result, err := retriever.Retrieve(cmd.Context(), queryRole, queryText)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := queryResultOutput{
		Role:         string(result.Role),
		Scope:        policy.AccessPolicy(result.Role).Scope(),
		UsedFallback: result.UsedFallback,
		NoData:       result.NoData,
		Chunks:       make([]queryChunkOutput, 0, len(result.Chunks)),
	}
	for _, c := range result.Chunks {
		out.Chunks = append(out.Chunks, queryChunkOutput{
			ID:         c.Chunk.ID,
			Department: c.Chunk.Department,
			SourcePath: c.Chunk.SourcePath,
			Offset:     c.Chunk.Offset,
			Score:      c.Score,
			Text:       c.Chunk.Text,
		})
	}
	output, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(output))
	return nil
}
