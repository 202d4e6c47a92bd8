package bulk

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/pkg/metrics"
)

// OpSendToLists labels list sends in the bulk metrics.
const OpSendToLists Op = "send_to_lists"

// Sender defaults used when a list send leaves them empty.
const (
	DefaultFrom     = "noreply@correos-masivos.com"
	DefaultFromName = "Correos Masivos"
)

var (
	ErrNoLists      = errors.New("no list ids given")
	ErrNoRecipients = errors.New("the selected lists have no contacts")
)

// ListMailer drains lists and sends bulk email. *apiclient.Client
// satisfies it.
type ListMailer interface {
	ContactsByList(ctx context.Context, listID string, params apiclient.Params) ([]apiclient.Contact, error)
	SendBulkEmails(ctx context.Context, req apiclient.BulkEmailRequest) (*apiclient.SendResult, error)
}

// ListSendRequest is one message addressed to every contact of some lists.
type ListSendRequest struct {
	ListIDs     []apiclient.ID `json:"listIds"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
	From        string         `json:"from,omitempty"`
	FromName    string         `json:"fromName,omitempty"`
	CampaignID  apiclient.ID   `json:"campaignId,omitempty"`
}

// ListSendResult reports a list send. Skipped holds the lists that could
// not be read; their contacts were left out.
type ListSendResult struct {
	Recipients int                   `json:"recipients"`
	Lists      []string              `json:"lists"`
	Skipped    []string              `json:"skipped"`
	Send       *apiclient.SendResult `json:"send"`
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// SendToLists drains each list in order and sends one bulk email to all of
// their contacts. A list that fails to drain is logged and skipped. Each
// recipient is personalized with name, email and company.
func SendToLists(ctx context.Context, m ListMailer, req ListSendRequest) (*ListSendResult, error) {
	if len(req.ListIDs) == 0 {
		return nil, ErrNoLists
	}

	res := &ListSendResult{Lists: []string{}, Skipped: []string{}}
	var recipients []apiclient.BulkRecipient
	for _, id := range req.ListIDs {
		listID := id.String()
		contacts, err := m.ContactsByList(ctx, listID, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("bulk: skipping list", "list_id", listID, "error", err)
			res.Skipped = append(res.Skipped, listID)
			continue
		}
		res.Lists = append(res.Lists, listID)
		for _, c := range contacts {
			recipients = append(recipients, recipientOf(c))
		}
	}
	if len(recipients) == 0 {
		return res, ErrNoRecipients
	}

	text := req.TextContent
	if text == "" {
		text = htmlTag.ReplaceAllString(req.HTMLContent, "")
	}
	out, err := m.SendBulkEmails(ctx, apiclient.BulkEmailRequest{
		Recipients:             recipients,
		From:                   cmp.Or(req.From, DefaultFrom),
		FromName:               cmp.Or(req.FromName, DefaultFromName),
		Subject:                req.Subject,
		HTMLContent:            req.HTMLContent,
		TextContent:            text,
		CampaignID:             req.CampaignID,
		GlobalPersonalizations: map[string]string{},
		TrackOpens:             true,
		TrackClicks:            true,
	})
	if err != nil {
		metrics.BulkOperations.WithLabelValues(string(OpSendToLists), "error").Inc()
		return res, fmt.Errorf("sending to %d recipients: %w", len(recipients), err)
	}
	metrics.BulkOperations.WithLabelValues(string(OpSendToLists), "ok").Inc()

	res.Recipients = len(recipients)
	res.Send = out
	logger.Info("bulk: list send queued", "lists", len(res.Lists), "skipped", len(res.Skipped), "recipients", res.Recipients)
	return res, nil
}

func recipientOf(c apiclient.Contact) apiclient.BulkRecipient {
	return apiclient.BulkRecipient{
		Email:       c.Email,
		RecipientID: c.ID,
		Personalizations: map[string]string{
			"name":    strings.TrimSpace(c.FirstName + " " + c.LastName),
			"email":   c.Email,
			"company": c.Company,
		},
	}
}
