package port

import "context"

// Summarizer turns retrieved passages into prose answering question.
type Summarizer interface {
	Summarize(ctx context.Context, question string, passages []string) (string, error)

	// Name identifies the summarizer in logs.
	Name() string
}
