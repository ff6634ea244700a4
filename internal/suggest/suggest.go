// Package suggest generates campaign message variants from a campaign
// name and objective via an OpenAI-compatible chat completion backend.
//
// The handler always returns exactly three {subject, body} variants:
// backend output is validated and trimmed or padded to three, and a
// configured secondary backend serves as fallback when the primary fails.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// VariantCount is the fixed number of suggestions returned.
const VariantCount = 3

// Client produces message variants for a campaign.
type Client interface {
	Suggest(ctx context.Context, name, objective string) ([]types.CampaignContent, error)
}

const systemPrompt = `You are a marketing copywriter. Given a campaign name and objective,
respond with a JSON array of exactly 3 objects, each {"subject": string, "body": string}.
The body may use {name} as a placeholder for the recipient's name. Respond with JSON only.`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPClient talks to one OpenAI-compatible chat completion endpoint.
type HTTPClient struct {
	http  *resty.Client
	model string
	log   zerolog.Logger
}

// NewHTTPClient builds a suggestion client. apiKey may be empty for
// backends without auth.
func NewHTTPClient(baseURL, apiKey, model string, log zerolog.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(20 * time.Second)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPClient{
		http:  client,
		model: model,
		log:   log.With().Str("component", "suggest").Logger(),
	}
}

// Suggest requests variants from the backend and normalizes the result to
// exactly VariantCount entries.
func (c *HTTPClient) Suggest(ctx context.Context, name, objective string) ([]types.CampaignContent, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Campaign name: %s\nObjective: %s", name, objective)},
		},
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("suggestion request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("suggestion request failed: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("suggestion response contained no choices")
	}

	variants, err := parseVariants(out.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return normalize(variants, name), nil
}

// parseVariants decodes the model output, tolerating markdown code fences
// around the JSON.
func parseVariants(content string) ([]types.CampaignContent, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var variants []types.CampaignContent
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &variants); err != nil {
		return nil, fmt.Errorf("failed to parse suggestions: %w", err)
	}

	kept := variants[:0]
	for _, v := range variants {
		if v.Body != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("suggestion response contained no usable variants")
	}
	return kept, nil
}

// normalize trims or pads to VariantCount using generic fallbacks.
func normalize(variants []types.CampaignContent, campaignName string) []types.CampaignContent {
	if len(variants) > VariantCount {
		return variants[:VariantCount]
	}
	for i := len(variants); i < VariantCount; i++ {
		variants = append(variants, fallbackVariant(campaignName, i))
	}
	return variants
}

func fallbackVariant(campaignName string, i int) types.CampaignContent {
	bodies := []string{
		"Hi {name}, we have something special lined up for you. Don't miss out!",
		"Hello {name}, here's an offer picked just for you.",
		"Hey {name}, great news from our team is waiting for you.",
	}
	return types.CampaignContent{
		Subject: campaignName,
		Body:    bodies[i%len(bodies)],
	}
}

// Fallback tries the primary client and falls back to the secondary when
// the primary errors.
type Fallback struct {
	primary   Client
	secondary Client
	log       zerolog.Logger
}

// NewFallback wraps primary with secondary. secondary may be nil, making
// the wrapper transparent.
func NewFallback(primary, secondary Client, log zerolog.Logger) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		log:       log.With().Str("component", "suggest").Logger(),
	}
}

func (f *Fallback) Suggest(ctx context.Context, name, objective string) ([]types.CampaignContent, error) {
	variants, err := f.primary.Suggest(ctx, name, objective)
	if err == nil {
		return variants, nil
	}
	if f.secondary == nil {
		return nil, err
	}
	f.log.Warn().Err(err).Msg("primary suggestion backend failed, trying fallback")
	return f.secondary.Suggest(ctx, name, objective)
}
