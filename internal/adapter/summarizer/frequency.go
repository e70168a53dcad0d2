package summarizer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"rolerag/internal/adapter/analyzer"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`)

// FrequencySummarizer is an extractive summarizer. It ranks passage
// sentences by normalized term frequency, boosted by overlap with the
// question, and keeps the best ones in their original order.
type FrequencySummarizer struct {
	tokenizer    *analyzer.Tokenizer
	maxSentences int
}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer(maxSentences int) *FrequencySummarizer {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &FrequencySummarizer{
		tokenizer:    analyzer.NewTokenizer(true),
		maxSentences: maxSentences,
	}
}

func (s *FrequencySummarizer) Name() string { return "frequency" }

func (s *FrequencySummarizer) Summarize(ctx context.Context, question string, passages []string) (string, error) {
	var sentences []string
	for _, p := range passages {
		found := sentencePattern.FindAllString(p+"\n", -1)
		for _, sent := range found {
			if sent = strings.TrimSpace(sent); sent != "" {
				sentences = append(sentences, sent)
			}
		}
	}
	if len(sentences) == 0 {
		return strings.TrimSpace(strings.Join(passages, " ")), nil
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = s.tokenizer.Tokenize(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}

	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	queryTerms := map[string]struct{}{}
	for _, tok := range s.tokenizer.Tokenize(question) {
		queryTerms[tok] = struct{}{}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
			if _, ok := queryTerms[tok]; ok {
				score++
			}
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(s.maxSentences, len(scores))
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)

	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}
