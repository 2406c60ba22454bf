package models

import (
	"encoding/json"
	"testing"
)

func TestJSONBMarshal(t *testing.T) {
	j := JSONB{
		"kit_colors": []string{"sky blue", "white"},
		"opponent":   "Luton",
	}

	data, err := j.Value()
	if err != nil {
		t.Fatalf("failed to marshal JSONB: %v", err)
	}

	if data == nil {
		t.Fatal("expected non-nil data")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["opponent"] != "Luton" {
		t.Errorf("expected opponent=Luton, got %v", result["opponent"])
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"minute": "89", "goals": 3}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["minute"] != "89" {
		t.Errorf("expected minute=89, got %v", j["minute"])
	}

	if j["goals"].(float64) != 3 {
		t.Errorf("expected goals=3, got %v", j["goals"])
	}
}

func TestJSONBRoundTripDomainValue(t *testing.T) {
	plan := TrollPlan{
		KitSpec:      KitSpec{Shirt: "sky blue", Shorts: "white", Socks: "sky blue"},
		RenderConfig: RenderConfig{Resolution: "720p", AspectRatio: VerticalAspectRatio},
		Storyboard: []StoryboardSegment{
			{ClipID: "s1", Purpose: PurposeHook, KeyframePrompt: "kf", VideoPrompt: "vp"},
		},
	}

	j, err := ToJSONB(plan)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	var decoded TrollPlan
	if err := j.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.KitSpec.Shirt != "sky blue" {
		t.Errorf("kit lost in round trip: %+v", decoded.KitSpec)
	}
	if len(decoded.Storyboard) != 1 || decoded.Storyboard[0].Purpose != PurposeHook {
		t.Errorf("storyboard lost in round trip: %+v", decoded.Storyboard)
	}
	if decoded.RenderConfig.AspectRatio != VerticalAspectRatio {
		t.Errorf("aspect ratio lost in round trip: %q", decoded.RenderConfig.AspectRatio)
	}
}

func TestCandidateFactSheet(t *testing.T) {
	candidate := NewsCandidate{
		ID:                "c1",
		Title:             "Hat-trick vs Luton",
		Opponent:          "Luton",
		Competition:       "Premier League",
		KitColors:         KitColors{Shirt: "sky blue", Shorts: "white", Socks: "sky blue"},
		ActionDescription: "Towering header in 89th minute",
		Sources:           []SourceRef{{Title: "BBC Sport", URL: "https://bbc.co.uk/sport"}},
	}

	sheet := candidate.FactSheet()

	if sheet.Title != "Hat-trick vs Luton" {
		t.Errorf("unexpected title: %q", sheet.Title)
	}
	if sheet.MatchContext != "vs Luton (Premier League)" {
		t.Errorf("unexpected match context: %q", sheet.MatchContext)
	}
	if sheet.SpecificActionMoment != "Towering header in 89th minute" {
		t.Errorf("unexpected action moment: %q", sheet.SpecificActionMoment)
	}
	if sheet.WhatHappened != "Towering header in 89th minute" {
		t.Errorf("unexpected what happened: %q", sheet.WhatHappened)
	}
	if len(sheet.Sources) != 1 || sheet.Sources[0].Title != "BBC Sport" {
		t.Errorf("sources lost in projection: %+v", sheet.Sources)
	}
}

func TestFindPlayer(t *testing.T) {
	player, ok := FindPlayer("cr7")
	if !ok {
		t.Fatal("expected cr7 in the catalog")
	}
	if player.Name == "" || player.VisualTokens == "" {
		t.Errorf("incomplete player record: %+v", player)
	}

	if _, ok := FindPlayer("nobody"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestProjectStatus(t *testing.T) {
	statuses := []ProjectStatus{
		ProjectStatusQueued,
		ProjectStatusResolving,
		ProjectStatusAwaitingSelection,
		ProjectStatusPlanning,
		ProjectStatusPlanned,
		ProjectStatusGenerating,
		ProjectStatusStitching,
		ProjectStatusCompleted,
		ProjectStatusStoppedEarly,
		ProjectStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestSegmentStatus(t *testing.T) {
	statuses := []SegmentStatus{
		SegmentStatusPending,
		SegmentStatusGeneratingImage,
		SegmentStatusGeneratingVideo,
		SegmentStatusCompleted,
		SegmentStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}
