package usecase

import (
	"errors"
	"fmt"
	"strings"

	"rolerag/internal/domain"
)

// Disclosure returns the sentence that opens every answer, naming the access
// scope that produced it.
func Disclosure(role domain.Role) string {
	return fmt.Sprintf("Based on your role in **%s**, here's the relevant information:", role.DisplayName())
}

// NoDataMessage is the reply when a role's scope holds nothing relevant.
func NoDataMessage(role domain.Role) string {
	return "No relevant data found for your role: " + role.DisplayName()
}

// ErrorMessage is the reply for a failed retrieval. Only the failure kind is
// shown; the full error belongs in the log.
func ErrorMessage(err error) string {
	return "Error occurred: " + errorDetail(err)
}

func errorDetail(err error) string {
	switch {
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "index unavailable"
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return "embedding backend unavailable"
	default:
		return "internal error"
	}
}

// RenderAnswer assembles the reply text for result: the disclosure, a
// blank line, then the chunk texts in index order separated by blank lines.
func RenderAnswer(result *domain.QueryResult) string {
	if result.NoData || len(result.Chunks) == 0 {
		return NoDataMessage(result.Role)
	}
	return withDisclosure(result.Role, strings.Join(result.Texts(), "\n\n"))
}

func withDisclosure(role domain.Role, body string) string {
	return Disclosure(role) + "\n\n" + body
}
