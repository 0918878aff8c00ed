package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MerchScanner/internal/domain"
	"MerchScanner/internal/ports"
)

// Notifier posts pass summaries to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishSummary posts the pass report as a plain-text message.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.PassSummary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatSummary(summary))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatSummary(s domain.PassSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingestion pass finished in %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Sources: %d processed, %d skipped\n", s.SourcesProcessed, s.SourcesSkipped)
	fmt.Fprintf(&b, "Articles: %d processed, %d skipped\n", s.ArticlesProcessed, s.ArticlesSkipped)
	fmt.Fprintf(&b, "Releases: %d new, %d updated\n", s.NewReleases, s.UpdatedReleases)
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}
