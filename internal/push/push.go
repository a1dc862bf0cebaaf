// Package push delivers comment notifications to iOS devices through APNs.
package push

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Options configures the APNs client. A .p8 key is preferred over a .p12 certificate.
type Options struct {
	KeyPath         string
	KeyID           string
	TeamID          string
	CertificatePath string
	CertificatePass string
	Topic           string
	Production      bool
}

// Message is one alert
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Client sends alerts through APNs
type Client struct {
	client *apns2.Client
	topic  string
}

// NewClient creates an APNs client from a signing key or a certificate
func NewClient(opts Options) (*Client, error) {
	var client *apns2.Client
	switch {
	case opts.KeyPath != "":
		authKey, err := token.AuthKeyFromFile(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
		}
		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   opts.KeyID,
			TeamID:  opts.TeamID,
		})
	case opts.CertificatePath != "":
		cert, err := certificate.FromP12File(opts.CertificatePath, opts.CertificatePass)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
		}
		client = apns2.NewClient(cert)
	default:
		return nil, fmt.Errorf("APNs key or certificate required")
	}

	if opts.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &Client{client: client, topic: opts.Topic}, nil
}

// Send delivers msg to a device token
func (c *Client) Send(ctx context.Context, deviceToken string, msg Message) error {
	p := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound("default")
	for k, v := range msg.Data {
		p = p.Custom(k, v)
	}

	res, err := c.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("notification rejected: %d %s", res.StatusCode, res.Reason)
	}

	log.Debug().Str("apns_id", res.ApnsID).Msg("Push notification sent")
	return nil
}

// Nop drops every message; used when APNs is not configured
type Nop struct{}

func (Nop) Send(ctx context.Context, deviceToken string, msg Message) error {
	return nil
}
