package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/retry"
)

// ---------------------------------------------------------------------------
// Story Planner
// Turns a verified event into a five-act cartoon storyboard. The planner model
// is multimodal: the anchor images are attached so the textual character
// descriptions it writes stay faithful, but the image bytes it echoes back are
// never trusted — the caller's originals are spliced into the returned plan.
// ---------------------------------------------------------------------------

const plannerSystemPrompt = `
You are the "Football Troll AI" (Veo 3.1 Pro Cartoon Pipeline).
Objective: Generate a 5-clip parody cartoon storyboard (Strict 9:16 Vertical).

**VISUAL STYLE LOCK:**
- 2D hand-drawn cartoon, thick clean black outlines, flat shading, bold colors.
- NO photorealism, NO 3D, NO blurred backgrounds.
- Caricature style: Exaggerated features (neck, jaw, teeth) based on the Character Bible.

**STRUCTURE:**
1. Hook (0-3s): High energy, establishes context.
2. Setup (3-6s): Tension building.
3. Action (6-9s): The specific moment (Goal/Miss/Fall).
4. Replay (9-12s): Exaggerated slow-mo or reaction.
5. Punchline (12-15s): The joke/troll conclusion.

**KIT RULES:**
- Use the provided kit_colors from the event.
- NO official logos (Nike/Adidas). Use generic stripes/shapes.

**OUTPUT SCHEMA:**
Return JSON with strictly 5 clips.
`

type PlannerService struct {
	apiKey string
	model  string
}

func NewPlannerService(apiKey, model string) *PlannerService {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	return &PlannerService{apiKey: apiKey, model: model}
}

func planSchema() *genai.Schema {
	return &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"event_fact_sheet", "character_bible", "kit_spec", "storyboard", "render_config", "compliance_report"},
		Properties: map[string]*genai.Schema{
			"event_fact_sheet": {
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
			"character_bible": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"character_id": {Type: genai.TypeString},
					// The anchor slot exists in the schema but is overwritten client-side:
					// round-tripping binary payloads through the model is wasteful and unreliable.
					"anchor_images": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"id":         {Type: genai.TypeString},
								"base64Data": {Type: genai.TypeString},
								"mimeType":   {Type: genai.TypeString},
								"label":      {Type: genai.TypeString},
							},
						},
					},
					"face_lock":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"motion_bible":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"style_lock":      {Type: genai.TypeString},
					"negative_prompt": {Type: genai.TypeString},
				},
			},
			"kit_spec": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"shirt":        {Type: genai.TypeString},
					"shorts":       {Type: genai.TypeString},
					"socks":        {Type: genai.TypeString},
					"accent":       {Type: genai.TypeString},
					"number_style": {Type: genai.TypeString},
				},
			},
			"storyboard": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"clip_id":          {Type: genai.TypeString},
						"purpose":          {Type: genai.TypeString, Enum: []string{"hook", "setup", "action", "replay", "punchline"}},
						"seconds":          {Type: genai.TypeNumber},
						"camera_angle":     {Type: genai.TypeString},
						"camera_movement":  {Type: genai.TypeString},
						"keyframe_prompt":  {Type: genai.TypeString},
						"video_prompt":     {Type: genai.TypeString},
						"overlay_text":     {Type: genai.TypeString},
						"continuity_notes": {Type: genai.TypeString},
					},
				},
			},
			"render_config": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"resolution":  {Type: genai.TypeString},
					"aspectRatio": {Type: genai.TypeString},
				},
			},
			"compliance_report": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"no_real_names_in_public_output": {Type: genai.TypeBoolean},
					"parody_included":                {Type: genai.TypeBoolean},
					"safe_to_post":                   {Type: genai.TypeBoolean},
					"notes":                          {Type: genai.TypeString},
				},
			},
		},
	}
}

// CreatePlan asks the model for a complete production plan for the event,
// then splices the caller's anchor images back into the character bible and
// forces the render config to the vertical constant.
func (s *PlannerService) CreatePlan(ctx context.Context, player models.PlayerProfile, event models.EventFactSheet, anchors []models.AnchorImage) (*models.TrollPlan, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	inputPayload := map[string]interface{}{
		"target_player":  player.Name,
		"verified_event": event,
		"style_guide":    "Thick outlines, flat shading, 2D cartoon.",
		"has_anchors":    len(anchors) > 0,
	}
	payloadJSON, err := json.Marshal(inputPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan input: %w", err)
	}

	parts := []*genai.Part{{Text: string(payloadJSON)}}
	for _, img := range anchors {
		data, err := base64.StdEncoding.DecodeString(img.Base64Data)
		if err != nil {
			return nil, fmt.Errorf("anchor image %s is not valid base64: %w", img.ID, err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: img.MimeType, Data: data},
		})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: plannerSystemPrompt}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    planSchema(),
	}

	resp, err := retry.Do(ctx, retry.Default, "story planning", func() (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, s.model, contents, config)
	})
	if err != nil {
		return nil, fmt.Errorf("story planning failed: %w", err)
	}

	plan, err := finalizePlan([]byte(resp.Text()), player, anchors)
	if err != nil {
		return nil, err
	}

	log.Printf("[Planner] Plan ready for %s: %d segments, aspect=%s",
		player.Name, len(plan.Storyboard), plan.RenderConfig.AspectRatio)

	return plan, nil
}

// finalizePlan parses the raw plan, validates the five-segment invariant, and
// applies the two client-side overrides: the anchor images the model echoed
// back are replaced with the caller's originals, and the aspect ratio is
// forced vertical no matter what came back.
func finalizePlan(raw []byte, player models.PlayerProfile, anchors []models.AnchorImage) (*models.TrollPlan, error) {
	var plan models.TrollPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, faults.Tag(faults.KindMalformedResponse, fmt.Errorf("failed to parse plan: %w", err))
	}

	if len(plan.Storyboard) != models.StoryboardLength {
		return nil, faults.New(faults.KindMalformedResponse,
			"plan has %d storyboard segments, want %d", len(plan.Storyboard), models.StoryboardLength)
	}

	for i, seg := range plan.Storyboard {
		if seg.KeyframePrompt == "" || seg.VideoPrompt == "" {
			return nil, faults.New(faults.KindMalformedResponse, "segment %d is missing prompts", i)
		}
	}

	if plan.CharacterBible.CharacterID == "" {
		plan.CharacterBible.CharacterID = player.ID
	}

	// The raw anchor bytes travel with the plan; the model never produces them.
	spliced := make([]models.AnchorImage, len(anchors))
	copy(spliced, anchors)
	plan.CharacterBible.AnchorImages = spliced

	plan.RenderConfig.AspectRatio = models.VerticalAspectRatio
	if plan.RenderConfig.Resolution == "" {
		plan.RenderConfig.Resolution = "720p"
	}

	return &plan, nil
}
