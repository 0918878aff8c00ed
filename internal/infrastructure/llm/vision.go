package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"MerchScanner/internal/config"
	"MerchScanner/internal/ports"
)

// Vision implements ports.ImageAnalyzer over a multimodal
// chat-completions API: per-product verification and composite
// detection with normalized bounding boxes.
type Vision struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.ImageAnalyzer = (*Vision)(nil)

// NewVision builds the client from configuration.
func NewVision(cfg config.ExtractorConfig, logger *slog.Logger) *Vision {
	return &Vision{
		endpoint: cfg.Endpoint,
		model:    cfg.VisionModel,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
		logger: logger,
	}
}

const verifyPrompt = `Does this image show the product %q? ` +
	`Respond with JSON: {"match": bool, "confidence": "low"|"medium"|"high"}.`

// VerifyProduct asks whether the image depicts the named product.
func (v *Vision) VerifyProduct(ctx context.Context, imageURL, productName string) (ports.ImageMatch, error) {
	content, err := v.ask(ctx, imageURL, fmt.Sprintf(verifyPrompt, productName))
	if err != nil {
		return ports.ImageMatch{}, err
	}

	var payload struct {
		Match      bool   `json:"match"`
		Confidence string `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return ports.ImageMatch{}, fmt.Errorf("malformed verification output: %w", err)
	}
	return ports.ImageMatch{Match: payload.Match, Confidence: strings.ToLower(payload.Confidence)}, nil
}

const compositePrompt = `This image may show several distinct products together. ` +
	`Product names: %s. If the image depicts two or more of them, respond with JSON ` +
	`{"is_composite": true, "regions": [{"name": <product name>, "x": %%, "y": %%, "w": %%, "h": %%}]} ` +
	`using percentage coordinates of the full image. Otherwise {"is_composite": false, "regions": []}.`

// DetectComposite asks whether the image is a composite of the named
// products; a nil slice means it is not.
func (v *Vision) DetectComposite(ctx context.Context, imageURL string, productNames []string) ([]ports.BoundingBox, error) {
	content, err := v.ask(ctx, imageURL, fmt.Sprintf(compositePrompt, strings.Join(productNames, "; ")))
	if err != nil {
		return nil, err
	}

	var payload struct {
		IsComposite bool `json:"is_composite"`
		Regions     []struct {
			Name string  `json:"name"`
			X    float64 `json:"x"`
			Y    float64 `json:"y"`
			W    float64 `json:"w"`
			H    float64 `json:"h"`
		} `json:"regions"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return nil, fmt.Errorf("malformed composite output: %w", err)
	}
	if !payload.IsComposite {
		return nil, nil
	}

	boxes := make([]ports.BoundingBox, 0, len(payload.Regions))
	for _, region := range payload.Regions {
		if region.Name == "" || region.W <= 0 || region.H <= 0 {
			continue
		}
		boxes = append(boxes, ports.BoundingBox{
			Name: region.Name,
			X:    region.X,
			Y:    region.Y,
			W:    region.W,
			H:    region.H,
		})
	}
	return boxes, nil
}

// ask posts one multimodal message (image by URL plus text) and returns
// the first choice's content.
func (v *Vision) ask(ctx context.Context, imageURL, prompt string) (string, error) {
	if v.apiKey == "" || v.endpoint == "" || v.model == "" {
		return "", fmt.Errorf("vision client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": v.model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
				},
			},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("api error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return completion.Choices[0].Message.Content, nil
}
