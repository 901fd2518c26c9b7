package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

// ErrNoContent is returned when the provider answers without any text
var ErrNoContent = errors.New("no content in response")

// GenerationRequest is a single article request sent to the provider
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Generator produces article text. Implementations may fail or return
// content that violates the requested shape.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

type promptFunc func(systemPrompt, userPrompt string, settings types.RequestSettings) (string, error)

// AnthropicGenerator generates articles through the Anthropic Messages API
type AnthropicGenerator struct {
	apiKey  string
	timeout time.Duration
	prompt  promptFunc
}

// NewAnthropicGenerator creates a generator bounded by timeout per request
func NewAnthropicGenerator(apiKey string, timeout time.Duration) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("creating generator: API key is empty")
	}

	g := &AnthropicGenerator{
		apiKey:  apiKey,
		timeout: timeout,
	}
	g.prompt = func(systemPrompt, userPrompt string, settings types.RequestSettings) (string, error) {
		response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, "", g.apiKey, settings)
		if err != nil {
			return "", err
		}
		if len(response.Content) == 0 {
			return "", ErrNoContent
		}
		return response.Content[0].Text, nil
	}
	return g, nil
}

// Generate sends the request and waits at most the configured timeout. The
// underlying client has no cancellation, so a timed out call is abandoned.
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	log.Printf("→ Sending request to Anthropic (%s)...", req.Model)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		settings := types.RequestSettings{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}
		text, err := g.prompt(req.SystemPrompt, req.UserPrompt, settings)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("generation aborted: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("anthropic request failed: %w", r.err)
		}
		if strings.TrimSpace(r.text) == "" {
			return "", ErrNoContent
		}
		log.Printf("✓ Received response from Anthropic")
		return r.text, nil
	}
}

// PromptData is exposed to the prompt templates
type PromptData struct {
	Topic           string
	DatePlaceholder string
	Category        string
	TargetWords     int
	MinSections     int
	FAQHeading      string
}

// PromptBuilder renders the system and user prompts for a topic
type PromptBuilder struct {
	system *template.Template
	user   *template.Template
	config *Config
}

// NewPromptBuilder parses the configured prompt templates
func NewPromptBuilder(config *Config) (*PromptBuilder, error) {
	systemText, err := config.GetSystemPrompt()
	if err != nil {
		return nil, err
	}
	userText, err := config.GetUserPrompt()
	if err != nil {
		return nil, err
	}

	// Validate that templates contain required variables
	if !strings.Contains(userText, "{{.Topic}}") {
		return nil, fmt.Errorf("user prompt template must contain {{.Topic}} variable")
	}
	if !strings.Contains(userText, "{{.DatePlaceholder}}") {
		return nil, fmt.Errorf("user prompt template must contain {{.DatePlaceholder}} variable")
	}

	system, err := template.New("system").Option("missingkey=error").Parse(systemText)
	if err != nil {
		return nil, fmt.Errorf("parsing system prompt template: %w", err)
	}
	user, err := template.New("user").Option("missingkey=error").Parse(userText)
	if err != nil {
		return nil, fmt.Errorf("parsing user prompt template: %w", err)
	}

	return &PromptBuilder{system: system, user: user, config: config}, nil
}

// Build returns the generation request for topic
func (b *PromptBuilder) Build(topic string) (GenerationRequest, error) {
	settings := b.config.Settings
	faqHeading := "Frequently Asked Questions"
	if len(settings.Validation.FAQHeadings) > 0 {
		faqHeading = settings.Validation.FAQHeadings[0]
	}
	data := PromptData{
		Topic:           topic,
		DatePlaceholder: settings.Normalizer.DatePlaceholder,
		Category:        settings.Generation.Category,
		TargetWords:     settings.Generation.TargetWords,
		MinSections:     settings.Validation.MinSections,
		FAQHeading:      faqHeading,
	}

	var system, user bytes.Buffer
	if err := b.system.Execute(&system, data); err != nil {
		return GenerationRequest{}, fmt.Errorf("executing system prompt template: %w", err)
	}
	if err := b.user.Execute(&user, data); err != nil {
		return GenerationRequest{}, fmt.Errorf("executing user prompt template: %w", err)
	}

	return GenerationRequest{
		SystemPrompt: strings.TrimSpace(system.String()),
		UserPrompt:   strings.TrimSpace(user.String()),
		Model:        settings.Generation.Model,
		MaxTokens:    settings.Generation.MaxTokens,
		Temperature:  settings.Generation.Temperature,
	}, nil
}
