// Package export writes every contact of a list to CSV. The list is drained
// page by page through the contacts service and the file is stored in a
// Sink: a local directory or an S3 bucket.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/pkg/metrics"
)

// Header is the CSV header row.
var Header = []string{"id", "email", "firstName", "lastName", "phone", "company", "unsubscribed"}

// Lister drains the contacts of a list.
type Lister interface {
	ContactsByList(ctx context.Context, listID string, params apiclient.Params) ([]apiclient.Contact, error)
}

// Result describes a finished export.
type Result struct {
	ListID   string `json:"listId"`
	Contacts int    `json:"contacts"`
	Sink     string `json:"sink"`
	Location string `json:"location"`
}

// Exporter exports lists to a sink.
type Exporter struct {
	lister Lister
	sink   Sink
	now    func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(lister Lister, sink Sink) *Exporter {
	return &Exporter{lister: lister, sink: sink, now: time.Now}
}

// Export drains the list and stores it as one CSV object. Nothing is
// written when draining fails.
func (e *Exporter) Export(ctx context.Context, listID string) (*Result, error) {
	contacts, err := e.lister.ContactsByList(ctx, listID, nil)
	if err != nil {
		return nil, fmt.Errorf("draining list %s: %w", listID, err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, contacts); err != nil {
		return nil, err
	}

	name := FileName(listID, e.now())
	loc, err := e.sink.Put(ctx, name, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", name, err)
	}

	metrics.ExportedContacts.WithLabelValues(e.sink.Name()).Add(float64(len(contacts)))
	logger.Info("export: list exported", "list_id", listID, "contacts", len(contacts), "sink", e.sink.Name(), "location", loc)
	return &Result{ListID: listID, Contacts: len(contacts), Sink: e.sink.Name(), Location: loc}, nil
}

// FileName is the object name of a list export taken at t.
func FileName(listID string, t time.Time) string {
	return fmt.Sprintf("list-%s-%s.csv", listID, t.UTC().Format("20060102-150405"))
}

// WriteCSV writes the header and one row per contact.
func WriteCSV(w io.Writer, contacts []apiclient.Contact) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, c := range contacts {
		row := []string{
			c.ID.String(), c.Email, c.FirstName, c.LastName, c.Phone, c.Company,
			strconv.FormatBool(unsubscribed(c)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing contact %s: %w", c.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// A contact is unsubscribed when flagged so, or when the service reports
// isSubscribed=false.
func unsubscribed(c apiclient.Contact) bool {
	if c.Unsubscribed {
		return true
	}
	return c.IsSubscribed != nil && !*c.IsSubscribed
}
