// Package llm generates summaries, chat answers and quizzes with an
// OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/sahayak/internal/llm/prompts"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/quiz"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	prompts *prompts.Set
}

// New creates a new LLM client using the embedded prompts.
func New(baseURL, apiKey, modelName string) (*Client, error) {
	set, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		prompts: set,
	}, nil
}

// SetMaxContentRunes bounds the material placed into each prompt.
func (c *Client) SetMaxContentRunes(n int) {
	c.prompts = c.prompts.WithMaxContentRunes(n)
}

// Ping checks that the API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM API ping: %w", err)
	}
	return nil
}

// Summarize writes a study summary of content.
func (c *Client) Summarize(ctx context.Context, title, content string) (string, error) {
	prompt, err := c.prompts.BuildSummary(title, content)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0.3, false)
}

// Answer replies to question using content as context. history holds the
// earlier turns of the conversation, oldest first.
func (c *Client) Answer(ctx context.Context, content string, history []model.ChatMessage, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("empty question")
	}
	system, err := c.prompts.BuildChat(content)
	if err != nil {
		return "", err
	}

	chatMsgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	return c.complete(ctx, chatMsgs, 0.5, false)
}

type quizResponse struct {
	Questions []quiz.Question `json:"questions"`
}

// GenerateQuiz asks for n multiple-choice questions about content. Questions
// that fail validation are dropped; an error is returned if none remain.
func (c *Client) GenerateQuiz(ctx context.Context, content string, n int) ([]quiz.Question, error) {
	prompt, err := c.prompts.BuildQuiz(content, n)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0.4, true)
	if err != nil {
		return nil, err
	}

	var resp quizResponse
	if err := json.Unmarshal([]byte(stripFence(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parse quiz response: %w (raw: %s)", err, raw)
	}

	questions := make([]quiz.Question, 0, len(resp.Questions))
	for i, q := range resp.Questions {
		if err := q.Validate(); err != nil {
			slog.Warn("dropping invalid quiz question", "index", i, "error", err)
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, errors.New("LLM returned no valid quiz questions")
	}
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions, nil
}

func (c *Client) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, temperature float32, jsonOut bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
	}
	if jsonOut {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM response", "raw", raw)
	if raw == "" {
		return "", fmt.Errorf("LLM returned an empty response")
	}
	return raw, nil
}

// stripFence removes a surrounding ``` or ```json fence some models add
// even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
