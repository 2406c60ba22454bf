package services

import (
	"encoding/json"
	"testing"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlanJSON(t *testing.T, mutate func(*models.TrollPlan)) []byte {
	t.Helper()
	plan := models.TrollPlan{
		EventFactSheet: models.EventFactSheet{Title: "Hat-trick vs Luton"},
		CharacterBible: models.CharacterBible{
			FaceLock:       []string{"big chin", "spiked hair"},
			StyleLock:      "2D cartoon, thick outlines",
			NegativePrompt: "no real logos",
		},
		KitSpec: models.KitSpec{Shirt: "sky blue", Shorts: "white", Socks: "sky blue"},
		Storyboard: []models.StoryboardSegment{
			{ClipID: "s1", Purpose: models.PurposeHook, Seconds: 4, CameraAngle: "low angle", CameraMovement: "push in", KeyframePrompt: "kf1", VideoPrompt: "vp1"},
			{ClipID: "s2", Purpose: models.PurposeSetup, Seconds: 4, CameraAngle: "wide", CameraMovement: "pan", KeyframePrompt: "kf2", VideoPrompt: "vp2"},
			{ClipID: "s3", Purpose: models.PurposeAction, Seconds: 5, CameraAngle: "tracking", CameraMovement: "whip pan", KeyframePrompt: "kf3", VideoPrompt: "vp3"},
			{ClipID: "s4", Purpose: models.PurposeReplay, Seconds: 4, CameraAngle: "slow-mo", CameraMovement: "orbit", KeyframePrompt: "kf4", VideoPrompt: "vp4"},
			{ClipID: "s5", Purpose: models.PurposePunchline, Seconds: 4, CameraAngle: "close up", CameraMovement: "zoom out", KeyframePrompt: "kf5", VideoPrompt: "vp5"},
		},
		RenderConfig: models.RenderConfig{Resolution: "720p", AspectRatio: "16:9"},
	}
	if mutate != nil {
		mutate(&plan)
	}
	raw, err := json.Marshal(plan)
	require.NoError(t, err)
	return raw
}

var testPlayer = models.PlayerProfile{ID: "cr7", Name: "Cristiano Ronaldo"}

func TestFinalizePlanForcesVerticalAspect(t *testing.T) {
	plan, err := finalizePlan(validPlanJSON(t, nil), testPlayer, nil)
	require.NoError(t, err)
	// 16:9 from the model gets overridden
	assert.Equal(t, models.VerticalAspectRatio, plan.RenderConfig.AspectRatio)
}

func TestFinalizePlanSplicesAnchors(t *testing.T) {
	anchors := []models.AnchorImage{
		{ID: "a1", Base64Data: "aGVsbG8=", MimeType: "image/png", Label: "front"},
		{ID: "a2", Base64Data: "d29ybGQ=", MimeType: "image/jpeg", Label: "side"},
	}

	plan, err := finalizePlan(validPlanJSON(t, nil), testPlayer, anchors)
	require.NoError(t, err)
	require.Len(t, plan.CharacterBible.AnchorImages, 2)
	assert.Equal(t, "aGVsbG8=", plan.CharacterBible.AnchorImages[0].Base64Data)

	// The plan holds its own copy, not the caller's slice
	anchors[0].Base64Data = "mutated"
	assert.Equal(t, "aGVsbG8=", plan.CharacterBible.AnchorImages[0].Base64Data)
}

func TestFinalizePlanDefaultsCharacterID(t *testing.T) {
	plan, err := finalizePlan(validPlanJSON(t, nil), testPlayer, nil)
	require.NoError(t, err)
	assert.Equal(t, "cr7", plan.CharacterBible.CharacterID)

	withID := validPlanJSON(t, func(p *models.TrollPlan) {
		p.CharacterBible.CharacterID = "custom"
	})
	plan, err = finalizePlan(withID, testPlayer, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", plan.CharacterBible.CharacterID)
}

func TestFinalizePlanDefaultsResolution(t *testing.T) {
	raw := validPlanJSON(t, func(p *models.TrollPlan) {
		p.RenderConfig.Resolution = ""
	})
	plan, err := finalizePlan(raw, testPlayer, nil)
	require.NoError(t, err)
	assert.Equal(t, "720p", plan.RenderConfig.Resolution)
}

func TestFinalizePlanRejectsWrongSegmentCount(t *testing.T) {
	raw := validPlanJSON(t, func(p *models.TrollPlan) {
		p.Storyboard = p.Storyboard[:3]
	})
	_, err := finalizePlan(raw, testPlayer, nil)
	require.Error(t, err)
	assert.Equal(t, faults.KindMalformedResponse, faults.KindOf(err))
}

func TestFinalizePlanRejectsEmptyPrompts(t *testing.T) {
	raw := validPlanJSON(t, func(p *models.TrollPlan) {
		p.Storyboard[2].VideoPrompt = ""
	})
	_, err := finalizePlan(raw, testPlayer, nil)
	require.Error(t, err)
	assert.Equal(t, faults.KindMalformedResponse, faults.KindOf(err))
}

func TestFinalizePlanRejectsGarbage(t *testing.T) {
	_, err := finalizePlan([]byte(`not json at all`), testPlayer, nil)
	require.Error(t, err)
	assert.Equal(t, faults.KindMalformedResponse, faults.KindOf(err))
}
