package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tansinh/switchboard/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// TokenStore lists the registered device tokens to notify.
type TokenStore interface {
	List(ctx context.Context) ([]model.DeviceToken, error)
}

// Notifier sends push notifications to all registered devices through the
// FCM HTTP v1 API. Sends are best effort: failures are logged, never
// surfaced to the caller's request path.
type Notifier struct {
	tokens    TokenStore
	source    oauth2.TokenSource
	client    *http.Client
	breaker   *breaker
	projectID string
}

// NewNotifier builds a notifier from a service account credentials file.
func NewNotifier(credentialsFile string, tokens TokenStore) (*Notifier, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read push credentials: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(raw, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse push credentials: %w", err)
	}

	var meta struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.ProjectID == "" {
		return nil, fmt.Errorf("push credentials missing project_id")
	}

	return &Notifier{
		tokens:    tokens,
		source:    jwtCfg.TokenSource(context.Background()),
		client:    &http.Client{Timeout: 10 * time.Second},
		breaker:   newBreaker(),
		projectID: meta.ProjectID,
	}, nil
}

// SendToAll delivers a notification to every registered device. Individual
// delivery failures do not stop the fan-out.
func (n *Notifier) SendToAll(ctx context.Context, title, body string, data map[string]string) {
	if n == nil {
		return
	}
	if !n.breaker.allow() {
		slog.Warn("Push gateway circuit open, dropping notification",
			"state", n.breaker.stateName(),
			"title", title,
		)
		return
	}

	tokens, err := n.tokens.List(ctx)
	if err != nil {
		slog.Error("Failed to list device tokens", "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	sent := 0
	for _, token := range tokens {
		if err := n.send(ctx, token.Token, title, body, data); err != nil {
			n.breaker.failure()
			slog.Warn("Push delivery failed", "error", err)
			continue
		}
		n.breaker.success()
		sent++
	}

	slog.Info("Push notifications dispatched",
		"sent", sent,
		"total", len(tokens),
		"title", title,
	)
}

func (n *Notifier) send(ctx context.Context, token, title, body string, data map[string]string) error {
	accessToken, err := n.source.Token()
	if err != nil {
		return fmt.Errorf("failed to mint push access token: %w", err)
	}

	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"token": token,
			"notification": map[string]string{
				"title": title,
				"body":  body,
			},
			"data": data,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	url := fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", n.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken.AccessToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
