package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
)

// SendWebhook posts the JSON payload to the destination URL, signed with an
// HMAC-SHA256 of the body so receivers can authenticate us.
func SendWebhook(url string, payload []byte, secret string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Spendly-Notify/1.0")
	req.Header.Set("X-Spendly-Signature", hex.EncodeToString(mac.Sum(nil)))

	// Don't let slow receivers block the dispatch loop.
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("receiver returned error: %d", resp.StatusCode)
}

// QueueNotifier implements ports.Notifier by enqueuing a durable job for the
// dispatch worker. Delivery retries belong to the worker; a notification
// failure can never touch ledger correctness from here.
type QueueNotifier struct {
	Jobs *storage.NotificationJobRepository
	URL  string
}

func NewQueueNotifier(jobs *storage.NotificationJobRepository, url string) *QueueNotifier {
	return &QueueNotifier{Jobs: jobs, URL: url}
}

func (n *QueueNotifier) Notify(ctx context.Context, ownerID uuid.UUID, kind string, payload map[string]any) error {
	if n.URL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"event":     kind,
		"owner_id":  ownerID,
		"data":      payload,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return n.Jobs.Enqueue(ctx, ownerID, kind, n.URL, body)
}
