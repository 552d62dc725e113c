package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FRBScanner/internal/config"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

const maxMessageLen = 4096

// Notifier posts run summaries to a Telegram chat via the bot API.
type Notifier struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Notifier{
		apiURL:   apiURL,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   client,
	}
}

// Configured reports whether the bot has somewhere to post.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// PublishSummary posts a plain-text digest of the run.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	if !n.Configured() || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatSummary(summary))
	form.Set("disable_web_page_preview", "true")

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

// FormatSummary renders the message body, truncated to Telegram's limit.
func FormatSummary(s domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FRB scan %s: %s\n", s.RunID, s.Status)
	fmt.Fprintf(&b, "Documents: %d scanned, %d screened out\n", s.Scanned, s.Screened)
	fmt.Fprintf(&b, "Candidates: %d (accepted %d, review %d, rejected %d)\n", s.Candidates, s.Accepted, s.Review, s.Rejected)
	fmt.Fprintf(&b, "Duplicates: %d, conflicts: %d\n", s.Duplicates, s.Conflicts)
	if len(s.NewNames) > 0 {
		fmt.Fprintf(&b, "New: %s\n", strings.Join(s.NewNames, ", "))
	} else {
		b.WriteString("No new localized FRBs.\n")
	}
	if len(s.Held) > 0 {
		b.WriteString("Held for review:\n")
		for _, h := range s.Held {
			fmt.Fprintf(&b, "- %s (%s): %s\n", h.Name, h.DocumentID, h.Reason)
		}
	}
	if failed := s.FetchFailures(); failed > 0 {
		fmt.Fprintf(&b, "Fetch failures: %d origin(s)\n", failed)
	}
	if s.Proposal != nil && s.Proposal.URL != "" {
		fmt.Fprintf(&b, "Proposal: %s\n", s.Proposal.URL)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}

	out := strings.TrimRight(b.String(), "\n")
	if r := []rune(out); len(r) > maxMessageLen {
		out = string(r[:maxMessageLen-1]) + "…"
	}
	return out
}
