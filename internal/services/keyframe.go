package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/media"
	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/retry"
)

// ---------------------------------------------------------------------------
// Keyframe generation
// Produces the still image that conditions each video clip. Anchor images are
// attached inline so the character's look stays locked across segments.
// ---------------------------------------------------------------------------

// ImageAsset is a generated still plus its MIME type.
type ImageAsset struct {
	Data     []byte
	MimeType string
}

type KeyframeService struct {
	apiKey string
	model  string
	client *http.Client

	// call performs one generateContent request; swapped in tests.
	call func(ctx context.Context, reqBody geminiGenerateRequest) (ImageAsset, error)
}

func NewKeyframeService(apiKey, model string) *KeyframeService {
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	s := &KeyframeService{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 300 * time.Second},
	}
	s.call = s.doGenerate
	return s
}

// Gemini REST request/response structures
type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ImageConfig *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateVertical produces a keyframe and verifies it came back 9:16. If the
// model ignored the aspect config, exactly one corrective retry is issued with
// an explicit vertical instruction, and its result is accepted as-is.
func (s *KeyframeService) GenerateVertical(ctx context.Context, prompt string, bible models.CharacterBible) (ImageAsset, error) {
	asset, err := s.generate(ctx, prompt, bible.AnchorImages)
	if err != nil {
		return ImageAsset{}, err
	}

	if !media.ImageIsVertical(asset.Data) {
		log.Printf("[Keyframe] Ratio mismatch, retrying with explicit vertical instruction")
		asset, err = s.generate(ctx, prompt+" (MUST BE VERTICAL 9:16 ASPECT RATIO)", bible.AnchorImages)
		if err != nil {
			return ImageAsset{}, err
		}
	}

	return asset, nil
}

func (s *KeyframeService) generate(ctx context.Context, prompt string, anchors []models.AnchorImage) (ImageAsset, error) {
	parts := []geminiPart{{Text: prompt}}
	if len(anchors) > 0 {
		parts[0].Text = "(REFERENCE IMAGES PROVIDED: COPY CHARACTER STYLE EXACTLY)\n" + prompt
		for _, img := range anchors {
			parts = append(parts, geminiPart{
				InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Base64Data},
			})
		}
	}

	reqBody := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ImageConfig: &geminiImageConfig{AspectRatio: models.VerticalAspectRatio},
		},
	}

	return retry.Do(ctx, retry.Default, "keyframe generation", func() (ImageAsset, error) {
		return s.call(ctx, reqBody)
	})
}

func (s *KeyframeService) doGenerate(ctx context.Context, reqBody geminiGenerateRequest) (ImageAsset, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", s.model, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return ImageAsset{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("image model returned status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 300))
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return ImageAsset{}, faults.Tag(faults.KindRateLimited, err)
		case http.StatusNotFound, http.StatusForbidden:
			return ImageAsset{}, faults.Tag(faults.KindNotFound, err)
		}
		return ImageAsset{}, err
	}

	var geminiResp geminiGenerateResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return ImageAsset{}, faults.Tag(faults.KindMalformedResponse, fmt.Errorf("failed to decode response: %w", err))
	}

	if len(geminiResp.Candidates) == 0 {
		return ImageAsset{}, faults.New(faults.KindMalformedResponse, "no candidates in response")
	}

	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return ImageAsset{}, faults.Tag(faults.KindMalformedResponse, fmt.Errorf("failed to decode base64 image: %w", err))
			}
			mimeType := part.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/jpeg"
			}
			return ImageAsset{Data: data, MimeType: mimeType}, nil
		}
	}

	return ImageAsset{}, faults.New(faults.KindMalformedResponse, "no image data generated from keyframe step")
}

// truncate limits a string to maxLen characters for log/error output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
