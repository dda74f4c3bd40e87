package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

const (
	defaultTranscriptionModel = openai.Whisper1
	defaultSpeechModel        = openai.TTSModel1
)

// statusOverloaded is returned by some providers when they shed load
const statusOverloaded = 529

// OpenAIClient wraps one go-openai client shared by the generator, transcriber and speech repos
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client; an empty baseURL keeps the OpenAI default
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config)}
}

// ========== Generator ==========

// generatorRepo implements the generator repository
type generatorRepo struct {
	c *OpenAIClient
}

// NewGeneratorRepo creates a chat-completion backed generator
func NewGeneratorRepo(c *OpenAIClient) repo.GeneratorRepo {
	return &generatorRepo{c: c}
}

// Complete sends one chat completion request
func (r *generatorRepo) Complete(ctx context.Context, req *repo.CompletionRequest) (*repo.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	resp, err := r.c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	out := &repo.CompletionResponse{}
	for _, choice := range resp.Choices {
		if choice.Message.ReasoningContent != "" {
			out.Blocks = append(out.Blocks, repo.ContentBlock{Type: repo.BlockThinking, Text: choice.Message.ReasoningContent})
		}
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			out.Blocks = append(out.Blocks, repo.ContentBlock{Type: repo.BlockText, Text: text})
		}
	}
	return out, nil
}

// classifyError marks rate limits, server errors and network timeouts as retryable
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &repo.ProviderError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    fmt.Sprintf("chat completion: %s", apiErr.Message),
			Transient:  retryableStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &repo.ProviderError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprintf("chat completion: %s", reqErr.Error()),
			Transient:  retryableStatus(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &repo.ProviderError{Message: fmt.Sprintf("chat completion: %v", err), Transient: true, Err: err}
	}
	return fmt.Errorf("chat completion: %w", err)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusOverloaded:
		return true
	}
	return false
}

// ========== Transcriber ==========

// transcriberRepo implements the transcriber repository
type transcriberRepo struct {
	c     *OpenAIClient
	model string
}

// NewTranscriberRepo creates a whisper backed transcriber
func NewTranscriberRepo(c *OpenAIClient, model string) repo.TranscriberRepo {
	if model == "" {
		model = defaultTranscriptionModel
	}
	return &transcriberRepo{c: c, model: model}
}

// Transcribe converts audio to text
func (r *transcriberRepo) Transcribe(ctx context.Context, filename string, audio []byte, speedHint string) (string, error) {
	prompt := ""
	if speedHint != "" {
		prompt = "The speaker talks " + speedHint + "."
	}
	resp, err := r.c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Prompt:   prompt,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ========== Speech ==========

// speechRepo implements the speech repository
type speechRepo struct {
	c     *OpenAIClient
	model openai.SpeechModel
}

// NewSpeechRepo creates a text-to-speech repository
func NewSpeechRepo(c *OpenAIClient, model string) repo.SpeechRepo {
	m := defaultSpeechModel
	if model != "" {
		m = openai.SpeechModel(model)
	}
	return &speechRepo{c: c, model: m}
}

// Synthesize converts text to mp3 audio
func (r *speechRepo) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if voice == "" {
		voice = domain.DefaultVoiceProfile
	}
	resp, err := r.c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          r.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, "", fmt.Errorf("speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, "", fmt.Errorf("read speech: %w", err)
	}
	return audio, "reply.mp3", nil
}
