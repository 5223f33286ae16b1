// Package llm wraps the OpenAI chat and embedding endpoints behind
// small interfaces the pipeline consumes.
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/recallhq/recall/internal/types"
)

// Completion is the result of one chat call, with token usage for the
// cost ledger.
type Completion struct {
	Text       string
	TokensUsed int
	Model      string
}

// ChatClient produces a completion for a system/user prompt pair.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// Embedder converts text into the canonical fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chat is the OpenAI-backed ChatClient.
type Chat struct {
	client *openai.Client
	model  string
}

// NewChat returns a Chat for the given model.
func NewChat(apiKey, model string) (*Chat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Chat{client: &client, model: model}, nil
}

// Complete runs a single non-streaming chat completion.
func (c *Chat) Complete(ctx context.Context, system, user string) (Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to call chat API: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{Model: c.model}, nil
	}
	return Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: int(resp.Usage.TotalTokens),
		Model:      resp.Model,
	}, nil
}

// OpenAIEmbedder is the OpenAI-backed Embedder.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder returns an OpenAIEmbedder for the given model.
func NewEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("embedding model name cannot be empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{client: &client, model: model}, nil
}

// Embed returns the canonical-dimension vector for text. A response of
// any other dimension is an error; callers degrade to keyword search.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(types.EmbeddingDimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	values := resp.Data[0].Embedding
	if len(values) != types.EmbeddingDimensions {
		return nil, fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), types.EmbeddingDimensions)
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}
