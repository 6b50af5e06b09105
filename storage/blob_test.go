package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// newStoreWithServer points the S3 client at a local test server speaking
// just enough of the S3 HTTP protocol for the call under test.
func newStoreWithServer(t *testing.T, handler http.HandlerFunc) *S3BlobStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  aws.AnonymousCredentials{},
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})

	return &S3BlobStore{
		client:   client,
		bucket:   "ddq-documents",
		region:   "us-east-1",
		endpoint: srv.URL,
		logger:   log.New(io.Discard, "", 0),
	}
}

func TestUploadPutsObjectAndReturnsURL(t *testing.T) {
	content := []byte("%PDF-1.4 rendered response")

	var gotMethod, gotPath, gotContentType string
	var gotBody []byte
	store := newStoreWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	url, err := store.Upload(context.Background(), content, "ddq_responses/doc.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("unexpected method: %s", gotMethod)
	}
	if gotPath != "/ddq-documents/ddq_responses/doc.pdf" {
		t.Fatalf("unexpected object path: %q", gotPath)
	}
	if gotContentType != "application/pdf" {
		t.Fatalf("unexpected content type: %q", gotContentType)
	}
	if !bytes.Equal(gotBody, content) {
		t.Fatal("uploaded body does not match input")
	}
	if want := store.URL("ddq_responses/doc.pdf"); url != want {
		t.Fatalf("Upload returned %q, want %q", url, want)
	}
}

func TestDownloadReturnsObjectBytes(t *testing.T) {
	content := []byte("%PDF-1.4 stored response")

	var gotMethod, gotPath string
	store := newStoreWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write(content)
	})

	data, err := store.Download(context.Background(), "ddq_responses/doc.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Fatalf("unexpected method: %s", gotMethod)
	}
	if gotPath != "/ddq-documents/ddq_responses/doc.pdf" {
		t.Fatalf("unexpected object path: %q", gotPath)
	}
	if !bytes.Equal(data, content) {
		t.Fatalf("downloaded %d bytes, want %d", len(data), len(content))
	}
}

func TestDownloadMissingObject(t *testing.T) {
	store := newStoreWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
	})

	if _, err := store.Download(context.Background(), "ddq_responses/missing.pdf"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestListForwardsPrefixAndCollectsKeys(t *testing.T) {
	var gotPrefix string
	store := newStoreWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefix = r.URL.Query().Get("prefix")
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
	<Name>ddq-documents</Name>
	<Prefix>ddq_responses/</Prefix>
	<KeyCount>2</KeyCount>
	<IsTruncated>false</IsTruncated>
	<Contents><Key>ddq_responses/a.pdf</Key></Contents>
	<Contents><Key>ddq_responses/b.pdf</Key></Contents>
</ListBucketResult>`)
	})

	names, err := store.List(context.Background(), "ddq_responses/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPrefix != "ddq_responses/" {
		t.Fatalf("unexpected prefix: %q", gotPrefix)
	}
	if len(names) != 2 || names[0] != "ddq_responses/a.pdf" || names[1] != "ddq_responses/b.pdf" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestURLPrefersPublicBase(t *testing.T) {
	store := &S3BlobStore{
		bucket:    "ddq-documents",
		region:    "eu-west-1",
		endpoint:  "http://localhost:9000",
		publicURL: "https://files.example.com",
	}

	got := store.URL("ddq_responses/doc.pdf")
	want := "https://files.example.com/ddq_responses/doc.pdf"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}

func TestURLUsesEndpointPathStyle(t *testing.T) {
	store := &S3BlobStore{
		bucket:   "ddq-documents",
		region:   "us-east-1",
		endpoint: "http://localhost:9000",
	}

	got := store.URL("ddq_responses/doc.pdf")
	want := "http://localhost:9000/ddq-documents/ddq_responses/doc.pdf"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}

func TestURLDefaultsToVirtualHostedS3(t *testing.T) {
	store := &S3BlobStore{
		bucket: "ddq-documents",
		region: "us-east-1",
	}

	got := store.URL("ddq_responses/doc.pdf")
	want := "https://ddq-documents.s3.us-east-1.amazonaws.com/ddq_responses/doc.pdf"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}
