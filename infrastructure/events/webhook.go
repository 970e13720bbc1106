package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgError "github.com/AzielCF/az-publisher/pkg/error"
	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const defaultWebhookAttempts = 5

type WebhookConfig struct {
	URLs        []string
	Secret      string
	Timeout     time.Duration
	MaxAttempts uint
	// InitialBackoff is the first wait between attempts to one URL.
	InitialBackoff time.Duration
}

// Webhook POSTs events to every configured URL, signing the body with
// X-Hub-Signature-256 when a secret is set.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultWebhookAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Webhook{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Send fails only when every URL failed; partial failures are logged.
func (w *Webhook) Send(ctx context.Context, evt Event) error {
	total := len(w.cfg.URLs)
	if total == 0 {
		logrus.Debugf("[WEBHOOK] no webhook configured; skipping %s", evt.Type)
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return pkgError.WebhookError(fmt.Sprintf("failed to marshal event: %v", err))
	}

	var failed []string
	for _, url := range w.cfg.URLs {
		if err := w.submit(ctx, url, body); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", url, err))
			logrus.Warnf("[WEBHOOK] failed forwarding %s to %s: %v", evt.Type, url, err)
		}
	}

	if len(failed) == total {
		return pkgError.WebhookError(fmt.Sprintf("all webhook URLs failed for %s: %s", evt.Type, strings.Join(failed, "; ")))
	}
	if len(failed) > 0 {
		logrus.Warnf("[WEBHOOK] some webhook URLs failed for %s (succeeded: %d/%d)", evt.Type, total-len(failed), total)
	} else {
		logrus.Infof("[WEBHOOK] %s forwarded to %d webhook(s)", evt.Type, total)
	}
	return nil
}

func (w *Webhook) submit(ctx context.Context, url string, body []byte) error {
	signature := Sign(body, w.cfg.Secret)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("X-Hub-Signature-256", "sha256="+signature)
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.cfg.MaxAttempts))
	return err
}

func (w *Webhook) Close() error { return nil }

// Sign returns the hex HMAC-SHA256 of body, or "" without a secret.
func Sign(body []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
