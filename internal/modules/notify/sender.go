// README: Push senders: JSON push gateway and Firebase Cloud Messaging.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"firebase.google.com/go/v4/messaging"
)

var ErrEmptyToken = errors.New("empty push token")

// Sender delivers one message to one device token.
type Sender interface {
	Send(ctx context.Context, token string, msg Message, sound string) error
}

// gatewayPayload is the body the push gateway expects.
type gatewayPayload struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// GatewaySender POSTs messages as JSON to an HTTP push gateway.
type GatewaySender struct {
	url    string
	client *http.Client
}

func NewGatewaySender(url string, timeout time.Duration) *GatewaySender {
	return &GatewaySender{url: url, client: &http.Client{Timeout: timeout}}
}

func (g *GatewaySender) Send(ctx context.Context, token string, msg Message, sound string) error {
	if token == "" {
		return ErrEmptyToken
	}
	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}
	body, err := json.Marshal(gatewayPayload{
		To:    token,
		Sound: sound,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push gateway: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FCMSender sends through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(client *messaging.Client) *FCMSender {
	return &FCMSender{client: client}
}

func (f *FCMSender) Send(ctx context.Context, token string, msg Message, sound string) error {
	if token == "" {
		return ErrEmptyToken
	}
	m := &messaging.Message{
		Token: token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{Title: msg.Title, Body: msg.Body},
					Sound: sound,
				},
			},
		},
	}
	if _, err := f.client.Send(ctx, m); err != nil {
		return fmt.Errorf("sending FCM: %w", err)
	}
	return nil
}
