package usecase

import (
	"context"
	"log/slog"

	"rolerag/internal/domain"
	"rolerag/internal/policy"
	"rolerag/internal/port"
)

// ReplyKind classifies a chat reply.
type ReplyKind string

const (
	ReplyAnswer ReplyKind = "answer"
	ReplyNoData ReplyKind = "no_data"
	ReplyError  ReplyKind = "error"
)

// ChatReply is what a chat turn produces. Failures are carried in the reply,
// with Err set, so callers can always render something.
type ChatReply struct {
	Response     string
	Role         domain.Role
	Scope        string
	UsedFallback bool
	Sources      []string
	Kind         ReplyKind
	Err          error
}

// ChatService runs retrieval and, when configured, summarization for one
// chat message.
type ChatService struct {
	retriever  *Retriever
	summarizer port.Summarizer
	logger     *slog.Logger
}

// NewChatService creates a chat service. summarizer may be nil.
func NewChatService(retriever *Retriever, summarizer port.Summarizer, logger *slog.Logger) *ChatService {
	return &ChatService{
		retriever:  retriever,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Reply answers message for a caller holding role.
func (s *ChatService) Reply(ctx context.Context, role, message string) ChatReply {
	result, err := s.retriever.Retrieve(ctx, role, message)
	if err != nil {
		resolved, _ := domain.ParseRole(role)
		s.logger.Error("retrieval failed", "role", resolved, "error", err)
		return ChatReply{
			Response: ErrorMessage(err),
			Role:     resolved,
			Scope:    policy.AccessPolicy(resolved).Scope(),
			Kind:     ReplyError,
			Err:      err,
		}
	}

	reply := ChatReply{
		Role:         result.Role,
		Scope:        policy.AccessPolicy(result.Role).Scope(),
		UsedFallback: result.UsedFallback,
		Sources:      result.Sources(),
	}
	if result.NoData {
		reply.Response = NoDataMessage(result.Role)
		reply.Kind = ReplyNoData
		return reply
	}

	reply.Kind = ReplyAnswer
	reply.Response = RenderAnswer(result)
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, message, result.Texts())
		switch {
		case err != nil:
			s.logger.Warn("summarizer failed, returning retrieved text",
				"summarizer", s.summarizer.Name(), "error", err)
		case summary != "":
			reply.Response = withDisclosure(result.Role, summary)
		}
	}
	return reply
}
