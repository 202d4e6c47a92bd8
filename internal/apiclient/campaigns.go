package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// GetCampaigns lists campaigns. Params are passed through unchanged.
func (c *Client) GetCampaigns(ctx context.Context, params Params) ([]Campaign, error) {
	var out List[Campaign]
	if err := c.do(ctx, http.MethodGet, c.URL(Campaigns, "campaigns"), &RequestOptions{Params: params}, &out); err != nil {
		return nil, fmt.Errorf("fetching campaigns: %w", err)
	}
	return out, nil
}

// GetCampaign fetches one campaign.
func (c *Client) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodGet, nil, "fetching", id)
}

// CreateCampaign creates a draft campaign.
func (c *Client) CreateCampaign(ctx context.Context, in CampaignInput) (*Campaign, error) {
	var out Campaign
	if err := c.do(ctx, http.MethodPost, c.URL(Campaigns, "campaigns"), &RequestOptions{Data: in}, &out); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}
	return &out, nil
}

// UpdateCampaign updates a campaign.
func (c *Client) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPut, in, "updating", id)
}

// DeleteCampaign deletes a campaign.
func (c *Client) DeleteCampaign(ctx context.Context, id string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Campaigns, "campaigns", id), nil); err != nil {
		return fmt.Errorf("deleting campaign %s: %w", id, err)
	}
	return nil
}

// ScheduleCampaign schedules a campaign. data carries scheduledAt.
func (c *Client) ScheduleCampaign(ctx context.Context, id string, data any) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, data, "scheduling", id, "schedule")
}

// StartCampaign starts sending immediately.
func (c *Client) StartCampaign(ctx context.Context, id string) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, nil, "starting", id, "start")
}

// PauseCampaign pauses a sending campaign.
func (c *Client) PauseCampaign(ctx context.Context, id string) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, nil, "pausing", id, "pause")
}

// ResumeCampaign resumes a paused campaign.
func (c *Client) ResumeCampaign(ctx context.Context, id string) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, nil, "resuming", id, "resume")
}

// CancelCampaign cancels a campaign.
func (c *Client) CancelCampaign(ctx context.Context, id string) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, nil, "cancelling", id, "cancel")
}

// DuplicateCampaign copies a campaign. data may carry a new name.
func (c *Client) DuplicateCampaign(ctx context.Context, id string, data any) (*Campaign, error) {
	return c.campaignCall(ctx, http.MethodPost, data, "duplicating", id, "duplicate")
}

func (c *Client) campaignCall(ctx context.Context, method string, data any, verb, id string, action ...string) (*Campaign, error) {
	segments := append([]string{"campaigns", id}, action...)
	var opts *RequestOptions
	if data != nil {
		opts = &RequestOptions{Data: data}
	}
	var out Campaign
	if err := c.do(ctx, method, c.URL(Campaigns, segments...), opts, &out); err != nil {
		return nil, fmt.Errorf("%s campaign %s: %w", verb, id, err)
	}
	return &out, nil
}

// AddCampaignTarget links a list or segment to a campaign.
func (c *Client) AddCampaignTarget(ctx context.Context, campaignID string, target CampaignTarget) (*CampaignTarget, error) {
	var out CampaignTarget
	if err := c.do(ctx, http.MethodPost, c.URL(Campaigns, "campaigns", campaignID, "targets"), &RequestOptions{Data: target}, &out); err != nil {
		return nil, fmt.Errorf("adding target to campaign %s: %w", campaignID, err)
	}
	return &out, nil
}

// GetCampaignTargets lists the targets of a campaign.
func (c *Client) GetCampaignTargets(ctx context.Context, campaignID string) ([]CampaignTarget, error) {
	var out List[CampaignTarget]
	if err := c.do(ctx, http.MethodGet, c.URL(Campaigns, "campaigns", campaignID, "targets"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching targets of campaign %s: %w", campaignID, err)
	}
	return out, nil
}

// RemoveCampaignTarget unlinks a target from a campaign.
func (c *Client) RemoveCampaignTarget(ctx context.Context, campaignID, targetID string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Campaigns, "campaigns", campaignID, "targets", targetID), nil); err != nil {
		return fmt.Errorf("removing target %s from campaign %s: %w", targetID, campaignID, err)
	}
	return nil
}

// GetCampaignStats returns campaign counters for the default user.
func (c *Client) GetCampaignStats(ctx context.Context, params Params) (*CampaignStats, error) {
	var out CampaignStats
	if err := c.do(ctx, http.MethodGet, c.URL(Campaigns, "campaigns", "stats"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching campaign stats: %w", err)
	}
	return &out, nil
}
