package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointPaths(t *testing.T) {
	var got []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path)
		w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	require.NoError(t, c.AddContactToList(ctx, "5", "9"))
	require.NoError(t, c.RemoveContactFromList(ctx, "5", "9"))
	require.NoError(t, c.DeleteContactList(ctx, "9"))
	_, err := c.UpdateContactList(ctx, "9", ContactList{Name: "VIP"})
	require.NoError(t, err)
	_, err = c.CancelCampaign(ctx, "3")
	require.NoError(t, err)
	_, err = c.ScheduleCampaign(ctx, "3", map[string]string{"scheduledAt": "2024-05-01T10:00:00"})
	require.NoError(t, err)
	require.NoError(t, c.RemoveCampaignTarget(ctx, "3", "1"))
	_, err = c.ActivateTemplate(ctx, "8")
	require.NoError(t, err)
	require.NoError(t, c.RemoveTemplateVariable(ctx, "8", "2"))
	require.NoError(t, c.SendBounceWebhook(ctx, map[string]string{"email": "a@example.com"}))
	_, err = c.RetryFailedEmails(ctx, "3")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /contacts/5/lists/9",
		"DELETE /contacts/5/lists/9",
		"DELETE /contacts/list/9",
		"PUT /contacts/list/9",
		"POST /campaigns/3/cancel",
		"POST /campaigns/3/schedule",
		"DELETE /campaigns/3/targets/1",
		"POST /templates/8/activate",
		"DELETE /templates/8/variables/2",
		"POST /emails/webhooks/bounce",
		"POST /emails/campaigns/3/retry",
	}, got)
}

func TestCreateContactDefaultsUser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1", body["userId"])
		assert.Equal(t, "ana@example.com", body["email"])
		w.Write([]byte(`{"id": 31, "email": "ana@example.com", "userId": 1}`))
	})

	created, err := c.CreateContact(context.Background(), Contact{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ID("31"), created.ID)
	assert.Equal(t, ID("1"), created.UserID)
}

func TestImportContactsMultipart(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts/import", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "1", r.FormValue("userId"))
		assert.Equal(t, "4", r.FormValue("contactListId"))
		assert.Equal(t, "Correo", r.FormValue("email"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "contacts.csv", hdr.Filename)
		assert.Equal(t, "Correo\nana@example.com\n", string(data))

		w.Write([]byte(`{"id": 12, "status": "PROCESSING", "totalRecords": 1}`))
	})

	imp, err := c.ImportContacts(context.Background(), "contacts.csv", strings.NewReader("Correo\nana@example.com\n"), ImportOptions{
		ContactListID: "4",
		Fields:        map[string]string{"email": "Correo"},
	})
	require.NoError(t, err)
	assert.Equal(t, ID("12"), imp.ID)
	assert.Equal(t, "PROCESSING", imp.Status)
}

func TestHealthCheckUnknownServiceFallsBackToContacts(t *testing.T) {
	var paths []string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Host+r.URL.Path)
		w.Write([]byte(`{"service":"contact-service","status":"UP","port":"8082"}`))
	})
	c.SetBaseURLs(BaseURLs{Users: "http://127.0.0.1:1"})

	h, err := c.HealthCheck(context.Background(), Service("billing"))
	require.NoError(t, err)
	assert.Equal(t, "UP", h.Status)
	assert.Equal(t, []string{strings.TrimPrefix(srv.URL, "http://") + "/billing/health"}, paths)
}

func TestRenderTemplateSubject(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/templates/2/render/subject", r.URL.Path)
		if strings.Contains(r.Header.Get("Accept"), "text") {
			w.Write([]byte(`Hola Ana`))
			return
		}
		w.Write([]byte(`"Hola Ana"`))
	})

	s, err := c.RenderTemplateSubject(context.Background(), "2", map[string]any{"firstName": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana", s)
}
