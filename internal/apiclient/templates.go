package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RenderedTemplate is the result of a server-side render or preview.
type RenderedTemplate struct {
	Subject     string `json:"subject,omitempty"`
	HTMLContent string `json:"htmlContent,omitempty"`
	TextContent string `json:"textContent,omitempty"`
}

// TemplateValidation is the result of ValidateTemplate.
type TemplateValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// GetTemplates lists templates of the default user.
func (c *Client) GetTemplates(ctx context.Context, params Params) ([]Template, error) {
	var out List[Template]
	if err := c.do(ctx, http.MethodGet, c.URL(Templates, "templates"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching templates: %w", err)
	}
	return out, nil
}

// GetActiveTemplates lists templates in ACTIVE state.
func (c *Client) GetActiveTemplates(ctx context.Context, params Params) ([]Template, error) {
	var out List[Template]
	if err := c.do(ctx, http.MethodGet, c.URL(Templates, "templates", "active"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching active templates: %w", err)
	}
	return out, nil
}

// GetTemplate fetches one template.
func (c *Client) GetTemplate(ctx context.Context, id string) (*Template, error) {
	return c.templateCall(ctx, http.MethodGet, nil, "fetching", id)
}

// CreateTemplate creates a template owned by the default user unless the
// template names one.
func (c *Client) CreateTemplate(ctx context.Context, t Template) (*Template, error) {
	if t.UserID == "" {
		t.UserID = ID(c.defaultUserID)
	}
	var out Template
	if err := c.do(ctx, http.MethodPost, c.URL(Templates, "templates"), &RequestOptions{Data: t}, &out); err != nil {
		return nil, fmt.Errorf("creating template: %w", err)
	}
	return &out, nil
}

// UpdateTemplate replaces a template.
func (c *Client) UpdateTemplate(ctx context.Context, id string, t Template) (*Template, error) {
	if t.UserID == "" {
		t.UserID = ID(c.defaultUserID)
	}
	return c.templateCall(ctx, http.MethodPut, t, "updating", id)
}

// DeleteTemplate deletes a template.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Templates, "templates", id), nil); err != nil {
		return fmt.Errorf("deleting template %s: %w", id, err)
	}
	return nil
}

func (c *Client) ActivateTemplate(ctx context.Context, id string) (*Template, error) {
	return c.templateCall(ctx, http.MethodPost, nil, "activating", id, "activate")
}

func (c *Client) ArchiveTemplate(ctx context.Context, id string) (*Template, error) {
	return c.templateCall(ctx, http.MethodPost, nil, "archiving", id, "archive")
}

func (c *Client) DeactivateTemplate(ctx context.Context, id string) (*Template, error) {
	return c.templateCall(ctx, http.MethodPost, nil, "deactivating", id, "deactivate")
}

// DuplicateTemplate copies a template. data may carry a new name.
func (c *Client) DuplicateTemplate(ctx context.Context, id string, data any) (*Template, error) {
	return c.templateCall(ctx, http.MethodPost, data, "duplicating", id, "duplicate")
}

func (c *Client) templateCall(ctx context.Context, method string, data any, verb, id string, action ...string) (*Template, error) {
	segments := append([]string{"templates", id}, action...)
	var opts *RequestOptions
	if data != nil {
		opts = &RequestOptions{Data: data}
	}
	var out Template
	if err := c.do(ctx, method, c.URL(Templates, segments...), opts, &out); err != nil {
		return nil, fmt.Errorf("%s template %s: %w", verb, id, err)
	}
	return &out, nil
}

// RenderTemplate renders subject and body with variables on the server.
func (c *Client) RenderTemplate(ctx context.Context, id string, variables map[string]any) (*RenderedTemplate, error) {
	return c.render(ctx, id, variables, "render")
}

// PreviewTemplate renders with the template's sample data on the server.
func (c *Client) PreviewTemplate(ctx context.Context, id string, variables map[string]any) (*RenderedTemplate, error) {
	return c.render(ctx, id, variables, "preview")
}

// RenderTemplateSubject renders only the subject line.
func (c *Client) RenderTemplateSubject(ctx context.Context, id string, variables map[string]any) (string, error) {
	return c.renderPart(ctx, id, variables, "subject")
}

// RenderTemplateHTML renders only the HTML body.
func (c *Client) RenderTemplateHTML(ctx context.Context, id string, variables map[string]any) (string, error) {
	return c.renderPart(ctx, id, variables, "html")
}

func (c *Client) render(ctx context.Context, id string, variables map[string]any, action string) (*RenderedTemplate, error) {
	var out RenderedTemplate
	if err := c.do(ctx, http.MethodPost, c.URL(Templates, "templates", id, action), &RequestOptions{Data: variables}, &out); err != nil {
		return nil, fmt.Errorf("%s template %s: %w", action, id, err)
	}
	return &out, nil
}

// renderPart returns the rendered text. The service answers either a JSON
// string or plain text.
func (c *Client) renderPart(ctx context.Context, id string, variables map[string]any, part string) (string, error) {
	body, err := c.Request(ctx, http.MethodPost, c.URL(Templates, "templates", id, "render", part), &RequestOptions{Data: variables})
	if err != nil {
		return "", fmt.Errorf("rendering %s of template %s: %w", part, id, err)
	}
	var s string
	if json.Unmarshal(body, &s) == nil {
		return s, nil
	}
	return string(body), nil
}

// GetTemplateVariables lists the declared variables of a template.
func (c *Client) GetTemplateVariables(ctx context.Context, id string) ([]TemplateVariable, error) {
	var out List[TemplateVariable]
	if err := c.do(ctx, http.MethodGet, c.URL(Templates, "templates", id, "variables"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching variables of template %s: %w", id, err)
	}
	return out, nil
}

// AddTemplateVariable declares a variable on a template.
func (c *Client) AddTemplateVariable(ctx context.Context, id string, v TemplateVariable) (*TemplateVariable, error) {
	var out TemplateVariable
	if err := c.do(ctx, http.MethodPost, c.URL(Templates, "templates", id, "variables"), &RequestOptions{Data: v}, &out); err != nil {
		return nil, fmt.Errorf("adding variable to template %s: %w", id, err)
	}
	return &out, nil
}

// RemoveTemplateVariable removes a declared variable.
func (c *Client) RemoveTemplateVariable(ctx context.Context, templateID, variableID string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Templates, "templates", templateID, "variables", variableID), nil); err != nil {
		return fmt.Errorf("removing variable %s from template %s: %w", variableID, templateID, err)
	}
	return nil
}

// ValidateTemplate asks the service to check a template's syntax.
func (c *Client) ValidateTemplate(ctx context.Context, id string) (*TemplateValidation, error) {
	var out TemplateValidation
	if err := c.do(ctx, http.MethodGet, c.URL(Templates, "templates", id, "validate"), nil, &out); err != nil {
		return nil, fmt.Errorf("validating template %s: %w", id, err)
	}
	return &out, nil
}

// GetTemplateStats returns template counters for the default user.
func (c *Client) GetTemplateStats(ctx context.Context, params Params) (*TemplateStats, error) {
	var out TemplateStats
	if err := c.do(ctx, http.MethodGet, c.URL(Templates, "templates", "stats"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching template stats: %w", err)
	}
	return &out, nil
}
