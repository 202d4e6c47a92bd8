package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/bulk"
	"github.com/masivos/admin-gateway/internal/config"
	"github.com/masivos/admin-gateway/internal/dashboard"
)

func newStubClient(t *testing.T, contacts int) (*apiclient.Client, *stub) {
	t.Helper()
	s := newStub(contacts)
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)

	c := apiclient.NewWithHTTPClient(config.ClientConfig{PageSize: 10, DefaultUserID: "1"},
		apiclient.StaticToken("dev-token"), srv.Client())
	base := srv.URL + "/api"
	c.SetBaseURLs(apiclient.BaseURLs{
		apiclient.Users:     base,
		apiclient.Contacts:  base,
		apiclient.Campaigns: base,
		apiclient.Emails:    base,
		apiclient.Templates: base,
		apiclient.Gateway:   srv.URL,
	})
	return c, s
}

func TestStubDrainsPagedList(t *testing.T) {
	c, _ := newStubClient(t, 45)

	contacts, err := c.ContactsByList(context.Background(), "1", nil)
	require.NoError(t, err)
	require.Len(t, contacts, 45)
	assert.Equal(t, apiclient.ID("1"), contacts[0].ID)
	assert.Equal(t, apiclient.ID("45"), contacts[44].ID)
}

func TestStubEmptyList(t *testing.T) {
	c, _ := newStubClient(t, 5)

	contacts, err := c.ContactsByList(context.Background(), "2", nil)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestStubBulkAddStopsOnDuplicate(t *testing.T) {
	c, s := newStubClient(t, 5)
	svc := bulk.NewService(c, nil)

	res, err := svc.AddContactsToList(context.Background(), "2", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, res.Applied)

	res, err = svc.AddContactsToList(context.Background(), "2", []string{"3", "1", "4"})
	require.Error(t, err)
	assert.Equal(t, []string{"3"}, res.Applied)
	assert.Equal(t, "1", res.FailedID)
	assert.Equal(t, []string{"1", "2", "3"}, s.members["2"])
}

func TestStubDashboardHasNoFallbacks(t *testing.T) {
	c, _ := newStubClient(t, 7)

	stats := dashboard.NewService(c, "1").Stats(context.Background())
	assert.Empty(t, stats.Fallbacks)
	assert.EqualValues(t, 7, stats.Contacts.TotalContacts)
	assert.EqualValues(t, 2, stats.Campaigns.TotalCampaigns)
	assert.EqualValues(t, 190, stats.Emails.DeliveredEmails)
}

func TestStubDeleteContact(t *testing.T) {
	c, s := newStubClient(t, 3)

	require.NoError(t, c.DeleteContact(context.Background(), "2"))
	assert.Equal(t, []string{"1", "3"}, s.members["1"])

	err := c.DeleteContact(context.Background(), "2")
	assert.True(t, apiclient.IsNotFound(err))
}

func TestStubHealth(t *testing.T) {
	srv := httptest.NewServer(newStub(0).routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/actuator/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "masivos-stub-api", resp.Header.Get("X-Server-Identity"))
}
