package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a backend identifier. The services serialize ids as JSON numbers
// while older endpoints send strings; both decode into the same value.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("apiclient: invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// Page is a Spring Data page as returned by the list endpoints.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Last          bool  `json:"last"`
	First         bool  `json:"first"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Empty         bool  `json:"empty"`
}

// User is a platform user.
type User struct {
	ID      ID       `json:"id"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Picture string   `json:"picture,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// Contact is an email recipient.
type Contact struct {
	ID             ID              `json:"id,omitempty"`
	Email          string          `json:"email"`
	FirstName      string          `json:"firstName,omitempty"`
	LastName       string          `json:"lastName,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Company        string          `json:"company,omitempty"`
	Position       string          `json:"position,omitempty"`
	Country        string          `json:"country,omitempty"`
	City           string          `json:"city,omitempty"`
	Address        string          `json:"address,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	CustomFields   json.RawMessage `json:"customFields,omitempty"`
	IsActive       *bool           `json:"isActive,omitempty"`
	IsSubscribed   *bool           `json:"isSubscribed,omitempty"`
	Unsubscribed   bool            `json:"unsubscribed,omitempty"`
	UserID         ID              `json:"userId,omitempty"`
	LastActivity   string          `json:"lastActivity,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
	UnsubscribedAt string          `json:"unsubscribedAt,omitempty"`
}

// ContactList is a named grouping of contacts used as a campaign target.
type ContactList struct {
	ID           ID       `json:"id,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	UserID       ID       `json:"userId,omitempty"`
	IsActive     *bool    `json:"isActive,omitempty"`
	ContactCount int64    `json:"contactCount"`
	Tags         []string `json:"tags,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// ContactImport describes a contact file import and its progress.
type ContactImport struct {
	ID                ID                `json:"id"`
	Filename          string            `json:"filename,omitempty"`
	OriginalFilename  string            `json:"originalFilename,omitempty"`
	FileSize          int64             `json:"fileSize,omitempty"`
	TotalRecords      int               `json:"totalRecords"`
	ProcessedRecords  int               `json:"processedRecords"`
	SuccessfulRecords int               `json:"successfulRecords"`
	FailedRecords     int               `json:"failedRecords"`
	Status            string            `json:"status"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	UserID            ID                `json:"userId,omitempty"`
	ContactListID     ID                `json:"contactListId,omitempty"`
	Headers           []string          `json:"headers,omitempty"`
	PreviewData       []map[string]any  `json:"previewData,omitempty"`
	FieldMapping      map[string]string `json:"fieldMapping,omitempty"`
	StartedAt         string            `json:"startedAt,omitempty"`
	CompletedAt       string            `json:"completedAt,omitempty"`
	CreatedAt         string            `json:"createdAt,omitempty"`
}

// ImportOptions are the form fields sent with an import upload. Fields maps
// contact fields to file columns, e.g. "email" -> "Correo".
type ImportOptions struct {
	UserID        string
	ContactListID string
	Fields        map[string]string
}

// ContactStats is the contact service statistics payload.
type ContactStats struct {
	TotalContacts        int64 `json:"totalContacts"`
	ActiveContacts       int64 `json:"activeContacts"`
	SubscribedContacts   int64 `json:"subscribedContacts,omitempty"`
	UnsubscribedContacts int64 `json:"unsubscribedContacts,omitempty"`
	TotalLists           int64 `json:"totalLists,omitempty"`
	TotalImports         int64 `json:"totalImports,omitempty"`
}

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignSent      CampaignStatus = "SENT"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCancelled CampaignStatus = "CANCELLED"
)

// SendType selects immediate or scheduled delivery.
type SendType string

const (
	SendImmediate SendType = "IMMEDIATE"
	SendScheduled SendType = "SCHEDULED"
)

// Campaign is a scheduled or sent bulk-email send definition.
type Campaign struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Subject     string          `json:"subject"`
	Description string          `json:"description,omitempty"`
	Status      CampaignStatus  `json:"status"`
	TemplateID  ID              `json:"templateId"`
	UserID      ID              `json:"userId"`
	SendType    SendType        `json:"sendType"`
	ScheduledAt string          `json:"scheduledAt,omitempty"`
	SentAt      string          `json:"sentAt,omitempty"`
	FromName    string          `json:"fromName,omitempty"`
	FromEmail   string          `json:"fromEmail,omitempty"`
	ReplyTo     string          `json:"replyTo,omitempty"`
	Stats       *DeliveryCounts `json:"stats,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// DeliveryCounts are per-campaign delivery counters.
type DeliveryCounts struct {
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Opened    int64 `json:"opened"`
	Clicked   int64 `json:"clicked"`
	Bounced   int64 `json:"bounced"`
}

// CampaignInput is the body of create and update campaign calls.
// Zero fields are omitted so the same type serves partial updates.
type CampaignInput struct {
	Name        string   `json:"name,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Description string   `json:"description,omitempty"`
	TemplateID  ID       `json:"templateId,omitempty"`
	UserID      ID       `json:"userId,omitempty"`
	SendType    SendType `json:"sendType,omitempty"`
	ScheduledAt string   `json:"scheduledAt,omitempty"`
}

// CampaignTarget links a campaign to a list or segment.
type CampaignTarget struct {
	ID         ID     `json:"id,omitempty"`
	CampaignID ID     `json:"campaignId,omitempty"`
	TargetType string `json:"targetType"`
	TargetID   ID     `json:"targetId"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// CampaignStats is the campaign service statistics payload.
type CampaignStats struct {
	TotalCampaigns     int64 `json:"totalCampaigns"`
	DraftCampaigns     int64 `json:"draftCampaigns"`
	ScheduledCampaigns int64 `json:"scheduledCampaigns"`
	SentCampaigns      int64 `json:"sentCampaigns"`
	ActiveCampaigns    int64 `json:"activeCampaigns"`
}

// TemplateStatus is the lifecycle state of a template.
type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "DRAFT"
	TemplateActive   TemplateStatus = "ACTIVE"
	TemplateArchived TemplateStatus = "ARCHIVED"
)

// Template is a reusable email body/subject with named placeholders.
type Template struct {
	ID          ID             `json:"id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
	UserID      ID             `json:"userId,omitempty"`
	Type        string         `json:"type,omitempty"`
	Status      TemplateStatus `json:"status,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// TemplateVariable is a declared placeholder of a template.
type TemplateVariable struct {
	ID           ID     `json:"id,omitempty"`
	TemplateID   ID     `json:"templateId,omitempty"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName,omitempty"`
	VariableType string `json:"variableType,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
	Description  string `json:"description,omitempty"`
	IsRequired   bool   `json:"isRequired"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// TemplateStats is the template service statistics payload.
type TemplateStats struct {
	TotalTemplates    int64 `json:"totalTemplates"`
	ActiveTemplates   int64 `json:"activeTemplates"`
	DraftTemplates    int64 `json:"draftTemplates"`
	ArchivedTemplates int64 `json:"archivedTemplates"`
}

// EmailStatus is one entry of the email send log.
type EmailStatus struct {
	ID           ID     `json:"id"`
	CampaignID   ID     `json:"campaignId,omitempty"`
	CampaignName string `json:"campaignName,omitempty"`
	RecipientID  ID     `json:"recipientId,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	ToEmail      string `json:"toEmail,omitempty"`
	Subject      string `json:"subject"`
	FromEmail    string `json:"fromEmail,omitempty"`
	FromName     string `json:"fromName,omitempty"`
	Status       string `json:"status"`
	Provider     string `json:"provider,omitempty"`
	SMTPProvider string `json:"smtpProvider,omitempty"`
	ExternalID   string `json:"externalId,omitempty"`
	SentAt       string `json:"sentAt,omitempty"`
	DeliveredAt  string `json:"deliveredAt,omitempty"`
	OpenedAt     string `json:"openedAt,omitempty"`
	ClickedAt    string `json:"clickedAt,omitempty"`
	BouncedAt    string `json:"bouncedAt,omitempty"`
	BounceReason string `json:"bounceReason,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	RetryCount   int    `json:"retryCount,omitempty"`
}

// EmailStats is the email service statistics payload.
type EmailStats struct {
	TotalEmails     int64            `json:"totalEmails"`
	SentEmails      int64            `json:"sentEmails"`
	DeliveredEmails int64            `json:"deliveredEmails"`
	OpenedEmails    int64            `json:"openedEmails"`
	ClickedEmails   int64            `json:"clickedEmails"`
	BouncedEmails   int64            `json:"bouncedEmails"`
	FailedEmails    int64            `json:"failedEmails"`
	DeliveryRate    float64          `json:"deliveryRate"`
	OpenRate        float64          `json:"openRate"`
	ClickRate       float64          `json:"clickRate"`
	BounceRate      float64          `json:"bounceRate"`
	CampaignID      ID               `json:"campaignId,omitempty"`
	StatusBreakdown map[string]int64 `json:"statusBreakdown,omitempty"`
}

// SendEmailRequest sends one email.
type SendEmailRequest struct {
	CampaignID       ID                `json:"campaignId,omitempty"`
	RecipientID      ID                `json:"recipientId,omitempty"`
	To               string            `json:"to"`
	From             string            `json:"from,omitempty"`
	FromName         string            `json:"fromName,omitempty"`
	Subject          string            `json:"subject"`
	HTMLContent      string            `json:"htmlContent,omitempty"`
	TextContent      string            `json:"textContent,omitempty"`
	Personalizations map[string]string `json:"personalizations,omitempty"`
}

// BulkRecipient is one recipient of a bulk send.
type BulkRecipient struct {
	Email            string            `json:"email"`
	RecipientID      ID                `json:"recipientId,omitempty"`
	Personalizations map[string]string `json:"personalizations,omitempty"`
}

// BulkEmailRequest sends one message to many recipients.
type BulkEmailRequest struct {
	Recipients             []BulkRecipient   `json:"recipients"`
	From                   string            `json:"from,omitempty"`
	FromName               string            `json:"fromName,omitempty"`
	Subject                string            `json:"subject"`
	HTMLContent            string            `json:"htmlContent,omitempty"`
	TextContent            string            `json:"textContent,omitempty"`
	CampaignID             ID                `json:"campaignId,omitempty"`
	GlobalPersonalizations map[string]string `json:"globalPersonalizations,omitempty"`
	TrackOpens             bool              `json:"trackOpens"`
	TrackClicks            bool              `json:"trackClicks"`
}

// DashboardStats is the combined statistics shown on the dashboard.
type DashboardStats struct {
	TotalContacts  int64   `json:"totalContacts"`
	TotalCampaigns int64   `json:"totalCampaigns"`
	TotalTemplates int64   `json:"totalTemplates"`
	EmailsSent     int64   `json:"emailsSent"`
	DeliveryRate   float64 `json:"deliveryRate"`
	OpenRate       float64 `json:"openRate"`
	ClickRate      float64 `json:"clickRate"`
}
