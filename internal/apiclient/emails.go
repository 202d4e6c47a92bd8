package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Health is a service health payload.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Port    string `json:"port,omitempty"`
}

// SendResult is the email service answer to a send.
type SendResult struct {
	ID      ID     `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Queued  int    `json:"queued,omitempty"`
}

// GetEmailHealth checks the email service.
func (c *Client) GetEmailHealth(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, c.URL(Emails, "emails", "health"), nil, &out); err != nil {
		return nil, fmt.Errorf("checking email health: %w", err)
	}
	return &out, nil
}

// SendEmail sends a single email.
func (c *Client) SendEmail(ctx context.Context, req SendEmailRequest) (*SendResult, error) {
	var out SendResult
	if err := c.do(ctx, http.MethodPost, c.URL(Emails, "emails", "send"), &RequestOptions{Data: req}, &out); err != nil {
		return nil, fmt.Errorf("sending email: %w", err)
	}
	return &out, nil
}

// SendBulkEmails sends one message to many recipients.
func (c *Client) SendBulkEmails(ctx context.Context, req BulkEmailRequest) (*SendResult, error) {
	var out SendResult
	if err := c.do(ctx, http.MethodPost, c.URL(Emails, "emails", "send", "bulk"), &RequestOptions{Data: req}, &out); err != nil {
		return nil, fmt.Errorf("sending bulk email: %w", err)
	}
	return &out, nil
}

// GetEmailLogs lists the email log with optional filters.
func (c *Client) GetEmailLogs(ctx context.Context, params Params) ([]EmailStatus, error) {
	var out List[EmailStatus]
	if err := c.do(ctx, http.MethodGet, c.URL(Emails, "emails"), &RequestOptions{Params: params}, &out); err != nil {
		return nil, fmt.Errorf("fetching email logs: %w", err)
	}
	return out, nil
}

// GetEmailStatus is an alias of GetEmailLogs.
func (c *Client) GetEmailStatus(ctx context.Context, params Params) ([]EmailStatus, error) {
	return c.GetEmailLogs(ctx, params)
}

// GetEmailHistory lists the log through the history endpoint, which
// supports date range filters.
func (c *Client) GetEmailHistory(ctx context.Context, params Params) ([]EmailStatus, error) {
	var out List[EmailStatus]
	if err := c.do(ctx, http.MethodGet, c.URL(Emails, "emails", "history"), &RequestOptions{Params: params}, &out); err != nil {
		return nil, fmt.Errorf("fetching email history: %w", err)
	}
	return out, nil
}

// GetEmailByID fetches one log entry.
func (c *Client) GetEmailByID(ctx context.Context, id string) (*EmailStatus, error) {
	var out EmailStatus
	if err := c.do(ctx, http.MethodGet, c.URL(Emails, "emails", id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching email %s: %w", id, err)
	}
	return &out, nil
}

// GetEmailLogsByCampaign filters the log by campaign.
func (c *Client) GetEmailLogsByCampaign(ctx context.Context, campaignID string, params Params) ([]EmailStatus, error) {
	return c.GetEmailLogs(ctx, mergeParams(Params{"campaignId": campaignID}, params))
}

// GetEmailLogsByStatus filters the log by delivery status.
func (c *Client) GetEmailLogsByStatus(ctx context.Context, status string, params Params) ([]EmailStatus, error) {
	return c.GetEmailLogs(ctx, mergeParams(Params{"status": status}, params))
}

// GetEmailStats returns delivery statistics.
func (c *Client) GetEmailStats(ctx context.Context, params Params) (*EmailStats, error) {
	var out EmailStats
	if err := c.do(ctx, http.MethodGet, c.URL(Emails, "emails", "stats"), &RequestOptions{Params: params}, &out); err != nil {
		return nil, fmt.Errorf("fetching email stats: %w", err)
	}
	return &out, nil
}

// GetEmailMetrics is an alias of GetEmailStats.
func (c *Client) GetEmailMetrics(ctx context.Context, params Params) (*EmailStats, error) {
	return c.GetEmailStats(ctx, params)
}

// GetCampaignEmailStats returns delivery statistics of one campaign.
func (c *Client) GetCampaignEmailStats(ctx context.Context, campaignID string) (*EmailStats, error) {
	return c.GetEmailStats(ctx, Params{"campaignId": campaignID})
}

// RetryFailedEmails queues the failed emails of a campaign again.
func (c *Client) RetryFailedEmails(ctx context.Context, campaignID string) (json.RawMessage, error) {
	body, err := c.Request(ctx, http.MethodPost, c.URL(Emails, "emails", "campaigns", campaignID, "retry"), nil)
	if err != nil {
		return nil, fmt.Errorf("retrying failed emails of campaign %s: %w", campaignID, err)
	}
	return body, nil
}

// GetFailedEmails lists the failed emails of a campaign.
func (c *Client) GetFailedEmails(ctx context.Context, campaignID string) ([]EmailStatus, error) {
	var out List[EmailStatus]
	if err := c.do(ctx, http.MethodGet, c.URL(Emails, "emails", "campaigns", campaignID, "failed"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching failed emails of campaign %s: %w", campaignID, err)
	}
	return out, nil
}

// WebhookEvent names an email provider webhook.
type WebhookEvent string

const (
	WebhookDelivery WebhookEvent = "delivery"
	WebhookOpen     WebhookEvent = "open"
	WebhookClick    WebhookEvent = "click"
	WebhookBounce   WebhookEvent = "bounce"
)

// SendWebhook posts a simulated provider event to the email service.
func (c *Client) SendWebhook(ctx context.Context, event WebhookEvent, data any) error {
	if _, err := c.Request(ctx, http.MethodPost, c.URL(Emails, "emails", "webhooks", string(event)), &RequestOptions{Data: data}); err != nil {
		return fmt.Errorf("sending %s webhook: %w", event, err)
	}
	return nil
}

func (c *Client) SendDeliveryWebhook(ctx context.Context, data any) error {
	return c.SendWebhook(ctx, WebhookDelivery, data)
}

func (c *Client) SendOpenWebhook(ctx context.Context, data any) error {
	return c.SendWebhook(ctx, WebhookOpen, data)
}

func (c *Client) SendClickWebhook(ctx context.Context, data any) error {
	return c.SendWebhook(ctx, WebhookClick, data)
}

func (c *Client) SendBounceWebhook(ctx context.Context, data any) error {
	return c.SendWebhook(ctx, WebhookBounce, data)
}

func mergeParams(base, override Params) Params {
	out := make(Params, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
