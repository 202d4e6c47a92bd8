package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/config"
)

type fakeLister struct {
	contacts []apiclient.Contact
	err      error
	gotList  string
}

func (f *fakeLister) ContactsByList(_ context.Context, listID string, _ apiclient.Params) ([]apiclient.Contact, error) {
	f.gotList = listID
	return f.contacts, f.err
}

type fakeS3 struct {
	bucket, key, contentType string
	body                     []byte
	headErr                  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func sampleContacts() []apiclient.Contact {
	no := false
	return []apiclient.Contact{
		{ID: "1", Email: "juan@example.com", FirstName: "Juan", LastName: "Pérez", Company: "Empresa ABC"},
		{ID: "2", Email: "ana@example.com", FirstName: "Ana", Phone: "+34 600", IsSubscribed: &no},
		{ID: "3", Email: "luis@example.com", LastName: "García, hijo", Unsubscribed: true},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleContacts()))

	want := "id,email,firstName,lastName,phone,company,unsubscribed\n" +
		"1,juan@example.com,Juan,Pérez,,Empresa ABC,false\n" +
		"2,ana@example.com,Ana,,+34 600,,true\n" +
		"3,luis@example.com,,\"García, hijo\",,,true\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVEmptyList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,email,firstName,lastName,phone,company,unsubscribed\n", buf.String())
}

func TestExportToFileSink(t *testing.T) {
	dir := t.TempDir()
	lister := &fakeLister{contacts: sampleContacts()}
	e := NewExporter(lister, NewFileSink(dir))
	e.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	res, err := e.Export(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, "7", lister.gotList)
	assert.Equal(t, 3, res.Contacts)
	assert.Equal(t, "file", res.Sink)
	assert.Equal(t, filepath.Join(dir, "list-7-20260203-040506.csv"), res.Location)

	data, err := os.ReadFile(res.Location)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "\n"))
}

func TestExportDrainFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(&fakeLister{err: errors.New("page 3: 502")}, NewFileSink(dir))

	_, err := e.Export(context.Background(), "7")
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestS3Sink(t *testing.T) {
	api := &fakeS3{}
	sink := NewS3SinkWithClient(api, "masivos-exports", "/lists/")
	e := NewExporter(&fakeLister{contacts: sampleContacts()[:1]}, sink)
	e.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	res, err := e.Export(context.Background(), "9")
	require.NoError(t, err)

	assert.Equal(t, "masivos-exports", api.bucket)
	assert.Equal(t, "lists/list-9-20260203-040506.csv", api.key)
	assert.Equal(t, "text/csv; charset=utf-8", api.contentType)
	assert.Contains(t, string(api.body), "juan@example.com")
	assert.Equal(t, "s3://masivos-exports/lists/list-9-20260203-040506.csv", res.Location)
}

func TestS3SinkCheck(t *testing.T) {
	api := &fakeS3{headErr: errors.New("403 Forbidden")}
	err := NewS3SinkWithClient(api, "b", "").Check(context.Background())
	assert.ErrorContains(t, err, "HeadBucket b")
}

func TestNewSink(t *testing.T) {
	s, err := NewSink(context.Background(), config.ExportConfig{Sink: "file", LocalPath: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Name())

	_, err = NewSink(context.Background(), config.ExportConfig{Sink: "s3"})
	assert.ErrorContains(t, err, "requires a bucket")

	_, err = NewSink(context.Background(), config.ExportConfig{Sink: "ftp"})
	assert.Error(t, err)
}
