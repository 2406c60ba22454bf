package services

import (
	"testing"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResolutionCandidates(t *testing.T) {
	raw := []byte(`{
		"needs_disambiguation": true,
		"candidates": [
			{"id": "c1", "title": "Hat-trick vs Luton", "opponent": "Luton", "competition": "Premier League",
			 "kit_colors": {"shirt": "sky blue", "shorts": "white", "socks": "sky blue"},
			 "action_description": "Towering header in 89th minute",
			 "sources": [{"title": "BBC Sport", "url": "https://bbc.co.uk/sport"}]},
			{"id": "c2", "title": "Missed penalty", "opponent": "Arsenal", "competition": "FA Cup"},
			{"id": "c3", "title": "Red card", "opponent": "Liverpool", "competition": "Premier League"}
		]
	}`)

	resolution, err := decodeResolution(raw)
	require.NoError(t, err)
	require.Len(t, resolution.Candidates, 3)
	assert.True(t, resolution.NeedsDisambiguation)
	assert.Equal(t, "c1", resolution.Candidates[0].ID)
	assert.Equal(t, "sky blue", resolution.Candidates[0].KitColors.Shirt)
	assert.Nil(t, resolution.SelectedEvent)
}

func TestDecodeResolutionSelectedEvent(t *testing.T) {
	raw := []byte(`{
		"needs_disambiguation": false,
		"selected_event": {
			"title": "Overhead kick vs Real Madrid",
			"specific_action_moment": "Overhead kick from the edge of the box",
			"match_context": "vs Real Madrid (Champions League)",
			"kit_colors": {"shirt": "white", "shorts": "white", "socks": "white"},
			"what_happened": "Scored a stunning overhead kick"
		}
	}`)

	resolution, err := decodeResolution(raw)
	require.NoError(t, err)
	require.NotNil(t, resolution.SelectedEvent)
	assert.Equal(t, "Overhead kick vs Real Madrid", resolution.SelectedEvent.Title)
	assert.Empty(t, resolution.Candidates)
}

func TestDecodeResolutionMalformed(t *testing.T) {
	_, err := decodeResolution([]byte(`I could not find anything, sorry!`))
	require.Error(t, err)
	assert.Equal(t, faults.KindMalformedResponse, faults.KindOf(err))
}

func TestDecodeResolutionNoMatch(t *testing.T) {
	_, err := decodeResolution([]byte(`{"needs_disambiguation": false, "candidates": []}`))
	require.Error(t, err)
	assert.Equal(t, faults.KindNoMatch, faults.KindOf(err))
	assert.Contains(t, err.Error(), "year or competition")
}
