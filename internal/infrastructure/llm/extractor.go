// Package llm talks to OpenAI-compatible APIs for product extraction
// and image understanding.
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
	"MerchScanner/internal/domain"
	"MerchScanner/internal/ports"
)

// Extractor implements ports.Extractor backed by a chat-completions API.
type Extractor struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Extractor = (*Extractor)(nil)

// NewExtractor builds the client from configuration.
func NewExtractor(cfg config.ExtractorConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// extractionPayload is the JSON contract the model must return.
type extractionPayload struct {
	Relevant bool `json:"is_merchandise_relevant"`
	Products []struct {
		Name           string   `json:"name"`
		Category       string   `json:"category"`
		Park           string   `json:"park"`
		Price          float64  `json:"price"`
		LimitedEdition bool     `json:"is_limited_edition"`
		OnlineOnly     bool     `json:"is_online_only"`
		Tags           []string `json:"tags"`
		DemandScore    int      `json:"demand_score"`
		Status         string   `json:"status"`
		ProjectedDate  string   `json:"projected_date"`
		ImageURL       string   `json:"image_url"`
	} `json:"products"`
}

// Extract asks the model for candidate products in the article.
// Malformed model output fails closed: an empty extraction and an
// error for the caller to record against the article.
func (e *Extractor) Extract(ctx context.Context, article domain.Article) (domain.Extraction, error) {
	if e.apiKey == "" || e.endpoint == "" || e.model == "" {
		return domain.Extraction{}, fmt.Errorf("extractor misconfigured")
	}

	content, err := e.complete(ctx, e.model, []map[string]any{
		{"role": "system", "content": extractionSystemPrompt},
		{"role": "user", "content": extractionUserMessage(article)},
	})
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extraction call: %w", err)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return domain.Extraction{}, fmt.Errorf("malformed extraction output: %w", err)
	}

	result := domain.Extraction{Relevant: payload.Relevant}
	for _, p := range payload.Products {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		product := domain.ExtractedProduct{
			Name:           strings.TrimSpace(p.Name),
			Category:       p.Category,
			Park:           p.Park,
			Price:          p.Price,
			LimitedEdition: p.LimitedEdition,
			OnlineOnly:     p.OnlineOnly,
			Tags:           p.Tags,
			DemandScore:    clampScore(p.DemandScore),
			StatusGuess:    statusGuess(p.Status),
			ImageURL:       p.ImageURL,
		}
		if p.ProjectedDate != "" {
			if d, err := time.Parse("2006-01-02", p.ProjectedDate); err == nil {
				product.ProjectedDate = &d
			}
		}
		result.Products = append(result.Products, product)
	}

	return result, nil
}

// complete posts a chat request and returns the first choice's content.
func (e *Extractor) complete(ctx context.Context, model string, messages []map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":           model,
		"messages":        messages,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
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

const extractionSystemPrompt = `You identify theme-park merchandise products in news articles. ` +
	`Respond with JSON: {"is_merchandise_relevant": bool, "products": [{"name", "category", "park", ` +
	`"price", "is_limited_edition", "is_online_only", "tags", "demand_score", "status", "projected_date", "image_url"}]}. ` +
	`demand_score is 1-10. status is one of rumored, announced, coming_soon, available, sold_out.`

func extractionUserMessage(article domain.Article) string {
	return fmt.Sprintf("Source: %s\nURL: %s\nTitle: %s\n\n%s",
		article.Source, article.URL, article.Title, article.Content)
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

func statusGuess(raw string) domain.Status {
	s := domain.Status(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	return domain.StatusAnnounced
}
