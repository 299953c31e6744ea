// Package gemini implements the completion service on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"nsfas-assistant/internal/domain"
)

const defaultModel = "gemini-1.5-flash"

// modelsAPI is the part of genai.Models the client needs.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TokenSource supplies the API key.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	models modelsAPI
	model  string
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

// New resolves the API key once and builds a Gemini API backed client.
func New(ctx context.Context, tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("gemini: token source must not be nil")
	}
	apiKey, err := tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve token: %w", err)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithModels(gc.Models, opts...)
}

func newWithModels(models modelsAPI, opts ...Option) (*Client, error) {
	if models == nil {
		return nil, errors.New("gemini: models api must not be nil")
	}
	c := &Client{models: models, model: defaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model reports the model name requests are sent to.
func (c *Client) Model() string { return c.model }

func generateConfig(opts domain.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(opts.MaxOutputTokens),
		ResponseMIMEType: "text/plain",
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(opts.TopP))
	}
	if opts.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(opts.TopK))
	}
	return cfg
}

// Generate sends the parts as one user turn and returns the text of the first
// candidate.
func (c *Client) Generate(ctx context.Context, parts []string, opts domain.GenerateOptions) (string, error) {
	if len(parts) == 0 {
		return "", errors.New("gemini: prompt must not be empty")
	}
	gparts := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		gparts = append(gparts, genai.NewPartFromText(p))
	}
	contents := []*genai.Content{genai.NewContentFromParts(gparts, genai.RoleUser)}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, generateConfig(opts))
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := candidateText(resp)
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
