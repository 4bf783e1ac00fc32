package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/utils"
)

// OpenAIService backs the completion, embedding and moderation contracts
// with the OpenAI API.
type OpenAIService struct {
	log       *logger.Logger
	client    *openai.Client
	model     string
	maxTokens int
	adaModel  string

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewOpenAIService(log *logger.Logger) (*OpenAIService, error) {
	serviceLog := log.With("service", "OpenAIService")
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY environment variable")
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := utils.GetEnv("OPENAI_API_BASE", "", log); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAIService{
		log:       serviceLog,
		client:    openai.NewClientWithConfig(cfg),
		model:     utils.GetEnv("OPENAI_GPT_MODEL", openai.GPT3Dot5Turbo, log),
		maxTokens: utils.GetEnvAsInt("OPENAI_GPT_MAX_TOKENS", 4096, log),
		adaModel:  utils.GetEnv("OPENAI_ADA_MODEL", "text-embedding-ada-002", log),
	}, nil
}

func (s *OpenAIService) Model() string {
	return s.model
}

func (s *OpenAIService) MaxTokens() int {
	return s.maxTokens
}

func (s *OpenAIService) CompletionStream(ctx context.Context, messages []ChatMessage, user string) (<-chan StreamChunk, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: toOpenAIMessages(messages),
		// Nudge the model toward new topics across a long conversation.
		PresencePenalty: 1,
		Stream:          true,
		User:            user,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start completion stream: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("Completion stream interrupted", "error", err)
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- StreamChunk{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *OpenAIService) CompletionOnce(ctx context.Context, messages []ChatMessage, user string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:           s.model,
		Messages:        toOpenAIMessages(messages),
		PresencePenalty: 1,
		User:            user,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrGaveUp
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) Embed(ctx context.Context, text, user string) ([]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(s.adaModel),
		User:  user,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}

func (s *OpenAIService) Moderated(ctx context.Context, text string) (bool, error) {
	resp, err := s.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
	})
	if err != nil {
		return false, fmt.Errorf("moderation check failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return false, nil
	}
	return resp.Results[0].Flagged, nil
}

// TokensIn counts tokens under the model's tokenizer. When the encoding
// cannot be loaded (offline environments) it falls back to the usual
// 4-chars-per-token estimate rather than failing the request.
func (s *OpenAIService) TokensIn(text string) int {
	s.encOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(s.model)
		if err != nil {
			s.log.Warn("Failed to load tokenizer, falling back to estimate", "model", s.model, "error", err)
			return
		}
		s.enc = enc
	})
	if s.enc == nil {
		return len(text) / 4
	}
	return len(s.enc.Encode(text, nil, nil))
}

// IsRetryable reports whether a provider error is worth another attempt:
// credential expiry, rate limiting, server-side hiccups, or the provider
// giving up without an answer.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrGaveUp) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 429, 500, 503:
			return true
		}
	}
	return false
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
