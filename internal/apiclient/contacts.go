package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// GetContacts lists the contacts of the default user. params may override
// userId and add filters such as page, size or search.
func (c *Client) GetContacts(ctx context.Context, params Params) ([]Contact, error) {
	var out List[Contact]
	if err := c.do(ctx, http.MethodGet, c.URL(Contacts, "contacts"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching contacts: %w", err)
	}
	return out, nil
}

// GetContact fetches a single contact.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var out Contact
	if err := c.do(ctx, http.MethodGet, c.URL(Contacts, "contacts", id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching contact %s: %w", id, err)
	}
	return &out, nil
}

// CreateContact creates a contact. The default user id is used when the
// contact has none.
func (c *Client) CreateContact(ctx context.Context, contact Contact) (*Contact, error) {
	if contact.UserID == "" {
		contact.UserID = ID(c.defaultUserID)
	}
	var out Contact
	if err := c.do(ctx, http.MethodPost, c.URL(Contacts, "contacts"), &RequestOptions{Data: contact}, &out); err != nil {
		return nil, fmt.Errorf("creating contact: %w", err)
	}
	return &out, nil
}

// UpdateContact replaces a contact.
func (c *Client) UpdateContact(ctx context.Context, id string, contact Contact) (*Contact, error) {
	if contact.UserID == "" {
		contact.UserID = ID(c.defaultUserID)
	}
	var out Contact
	if err := c.do(ctx, http.MethodPut, c.URL(Contacts, "contacts", id), &RequestOptions{Data: contact}, &out); err != nil {
		return nil, fmt.Errorf("updating contact %s: %w", id, err)
	}
	return &out, nil
}

// DeleteContact deletes a contact.
func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Contacts, "contacts", id), nil); err != nil {
		return fmt.Errorf("deleting contact %s: %w", id, err)
	}
	return nil
}

// UnsubscribeContact marks a contact as unsubscribed.
func (c *Client) UnsubscribeContact(ctx context.Context, id string) error {
	if _, err := c.Request(ctx, http.MethodPost, c.URL(Contacts, "contacts", id, "unsubscribe"), nil); err != nil {
		return fmt.Errorf("unsubscribing contact %s: %w", id, err)
	}
	return nil
}

// ResubscribeContact reverses an unsubscribe.
func (c *Client) ResubscribeContact(ctx context.Context, id string) error {
	if _, err := c.Request(ctx, http.MethodPost, c.URL(Contacts, "contacts", id, "resubscribe"), nil); err != nil {
		return fmt.Errorf("resubscribing contact %s: %w", id, err)
	}
	return nil
}

// GetContactLists lists the contact lists of the default user.
func (c *Client) GetContactLists(ctx context.Context, params Params) ([]ContactList, error) {
	var out List[ContactList]
	if err := c.do(ctx, http.MethodGet, c.URL(Contacts, "contacts", "lists"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching contact lists: %w", err)
	}
	return out, nil
}

// CreateContactList creates a list.
func (c *Client) CreateContactList(ctx context.Context, list ContactList) (*ContactList, error) {
	if list.UserID == "" {
		list.UserID = ID(c.defaultUserID)
	}
	var out ContactList
	if err := c.do(ctx, http.MethodPost, c.URL(Contacts, "contacts", "lists"), &RequestOptions{Data: list}, &out); err != nil {
		return nil, fmt.Errorf("creating contact list: %w", err)
	}
	return &out, nil
}

// UpdateContactList replaces a list's name and description.
func (c *Client) UpdateContactList(ctx context.Context, id string, list ContactList) (*ContactList, error) {
	var out ContactList
	if err := c.do(ctx, http.MethodPut, c.URL(Contacts, "contacts", "list", id), &RequestOptions{Data: list}, &out); err != nil {
		return nil, fmt.Errorf("updating contact list %s: %w", id, err)
	}
	return &out, nil
}

// DeleteContactList deletes a list. Its contacts are kept.
func (c *Client) DeleteContactList(ctx context.Context, id string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Contacts, "contacts", "list", id), nil); err != nil {
		return fmt.Errorf("deleting contact list %s: %w", id, err)
	}
	return nil
}

// AddContactToList adds one contact to a list.
func (c *Client) AddContactToList(ctx context.Context, contactID, listID string) error {
	if _, err := c.Request(ctx, http.MethodPost, c.URL(Contacts, "contacts", contactID, "lists", listID), nil); err != nil {
		return fmt.Errorf("adding contact %s to list %s: %w", contactID, listID, err)
	}
	return nil
}

// RemoveContactFromList removes one contact from a list.
func (c *Client) RemoveContactFromList(ctx context.Context, contactID, listID string) error {
	if _, err := c.Request(ctx, http.MethodDelete, c.URL(Contacts, "contacts", contactID, "lists", listID), nil); err != nil {
		return fmt.Errorf("removing contact %s from list %s: %w", contactID, listID, err)
	}
	return nil
}

// PreviewImport uploads a CSV or Excel file and returns its headers and
// first rows without importing anything.
func (c *Client) PreviewImport(ctx context.Context, filename string, file io.Reader) (*ContactImport, error) {
	body, contentType, err := multipartBody(filename, file, nil)
	if err != nil {
		return nil, err
	}
	var out ContactImport
	opts := &RequestOptions{Data: body, Headers: map[string]string{"Content-Type": contentType}}
	if err := c.do(ctx, http.MethodPost, c.URL(Contacts, "contacts", "import", "preview"), opts, &out); err != nil {
		return nil, fmt.Errorf("previewing import of %s: %w", filename, err)
	}
	return &out, nil
}

// ImportContacts uploads a file for import. The import runs on the server;
// poll GetImportStatus with the returned id.
func (c *Client) ImportContacts(ctx context.Context, filename string, file io.Reader, opts ImportOptions) (*ContactImport, error) {
	if opts.UserID == "" {
		opts.UserID = c.defaultUserID
	}
	fields := map[string]string{"userId": opts.UserID}
	if opts.ContactListID != "" {
		fields["contactListId"] = opts.ContactListID
	}
	for k, v := range opts.Fields {
		fields[k] = v
	}

	body, contentType, err := multipartBody(filename, file, fields)
	if err != nil {
		return nil, err
	}
	var out ContactImport
	ro := &RequestOptions{Data: body, Headers: map[string]string{"Content-Type": contentType}}
	if err := c.do(ctx, http.MethodPost, c.URL(Contacts, "contacts", "import"), ro, &out); err != nil {
		return nil, fmt.Errorf("importing %s: %w", filename, err)
	}
	return &out, nil
}

// GetImportStatus returns the progress of an import.
func (c *Client) GetImportStatus(ctx context.Context, importID string) (*ContactImport, error) {
	var out ContactImport
	if err := c.do(ctx, http.MethodGet, c.URL(Contacts, "contacts", "import", importID), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching import %s: %w", importID, err)
	}
	return &out, nil
}

// GetContactStats returns contact counters for the default user.
func (c *Client) GetContactStats(ctx context.Context, params Params) (*ContactStats, error) {
	var out ContactStats
	if err := c.do(ctx, http.MethodGet, c.URL(Contacts, "contacts", "stats"), &RequestOptions{Params: c.withUser(params)}, &out); err != nil {
		return nil, fmt.Errorf("fetching contact stats: %w", err)
	}
	return &out, nil
}

// GetDashboardStats returns the combined statistics served by the
// contacts service.
func (c *Client) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var out DashboardStats
	if err := c.do(ctx, http.MethodGet, c.URL(Contacts, "dashboard", "stats"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching dashboard stats: %w", err)
	}
	return &out, nil
}

// multipartBody encodes file as the "file" part followed by form fields in
// key order.
func multipartBody(filename string, file io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copying %s: %w", filename, err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
