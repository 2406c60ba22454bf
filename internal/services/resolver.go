package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/retry"
)

// ---------------------------------------------------------------------------
// News Resolver
// Grounds the parody in a real match: Gemini with the Google Search tool and a
// response schema, returning three disambiguation candidates with extracted
// kit colors and a vivid action description.
// ---------------------------------------------------------------------------

const resolverSystemPrompt = `
You are the News Resolver for the Football Troll AI.
Your job is to find SPECIFIC match details to ground a parody video.

Rules:
1. Use Google Search to find recent matches involving the player.
2. Return exactly 3 candidates.
3. You MUST extract kit colors (Shirt/Shorts/Socks) for the specific match date.
4. "action_description" must be vivid: "Towering header in 89th minute" or "Missed penalty sent into orbit".
`

type ResolverService struct {
	apiKey string
	model  string
}

func NewResolverService(apiKey, model string) *ResolverService {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	return &ResolverService{apiKey: apiKey, model: model}
}

// kitColorsSchema is shared between the resolver and planner response schemas.
func kitColorsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"shirt":  {Type: genai.TypeString},
			"shorts": {Type: genai.TypeString},
			"socks":  {Type: genai.TypeString},
		},
	}
}

func sourcesSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {Type: genai.TypeString},
				"url":   {Type: genai.TypeString},
			},
		},
	}
}

func resolutionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"needs_disambiguation": {Type: genai.TypeBoolean},
			"candidates": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":                 {Type: genai.TypeString},
						"title":              {Type: genai.TypeString},
						"date":               {Type: genai.TypeString},
						"competition":        {Type: genai.TypeString},
						"opponent":           {Type: genai.TypeString},
						"scoreline":          {Type: genai.TypeString},
						"minute":             {Type: genai.TypeString},
						"goal_type":          {Type: genai.TypeString},
						"kit_colors":         kitColorsSchema(),
						"action_description": {Type: genai.TypeString},
						"sources":            sourcesSchema(),
					},
				},
			},
			"selected_event": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":                  {Type: genai.TypeString},
					"specific_action_moment": {Type: genai.TypeString},
					"match_context":          {Type: genai.TypeString},
					"what_happened":          {Type: genai.TypeString},
					"kit_colors":             kitColorsSchema(),
					"sources":                sourcesSchema(),
				},
			},
		},
	}
}

// Resolve sends the player and free-text query to the model with live search
// grounding and returns the disambiguation candidates, or the single resolved
// event on the rare confident path. Candidates take precedence whenever the
// list is non-empty; neither present is a no-match fault.
func (s *ResolverService) Resolve(ctx context.Context, player models.PlayerProfile, query string) (*models.NewsResolution, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	userText := fmt.Sprintf("Player: %s\nUser Query: %s\nFind recent matches, kit colors, and specific dramatic moments.", player.Name, query)

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: resolverSystemPrompt}}},
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    resolutionSchema(),
	}

	resp, err := retry.Do(ctx, retry.Default, "news resolution", func() (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, s.model, genai.Text(userText), config)
	})
	if err != nil {
		return nil, fmt.Errorf("news resolution failed: %w", err)
	}

	resolution, err := decodeResolution([]byte(resp.Text()))
	if err != nil {
		return nil, err
	}

	log.Printf("[Resolver] %s %q: %d candidates, pre-resolved=%v",
		player.Name, query, len(resolution.Candidates), resolution.SelectedEvent != nil)

	return resolution, nil
}

// decodeResolution parses the raw model output and enforces the no-match rule:
// a response carrying neither candidates nor a selected event is unusable.
func decodeResolution(raw []byte) (*models.NewsResolution, error) {
	var resolution models.NewsResolution
	if err := json.Unmarshal(raw, &resolution); err != nil {
		return nil, faults.Tag(faults.KindMalformedResponse, fmt.Errorf("failed to parse resolution: %w", err))
	}

	if len(resolution.Candidates) == 0 && resolution.SelectedEvent == nil {
		return nil, faults.New(faults.KindNoMatch, "no specific match events found; try adding a year or competition")
	}

	return &resolution, nil
}
