package objectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a Store pointed at a local httptest server instead
// of real S3, using path-style addressing and static credentials.
func newTestStore(t *testing.T, server *httptest.Server) *Store {
	t.Helper()
	endpoint, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := s3.New(s3.Options{
			Region:       "us-east-1",
			BaseEndpoint: aws.String(endpoint.String()),
			Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
			UsePathStyle: true,
	})

	return &Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    "calliq-recordings",
		signedTTL: DefaultSignedURLTTL,
	}
}

func TestSignedURL_ReturnsPresignedGetURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t, server)

	url, err := store.SignedURL(context.Background(), "calls/rec-1.wav")

	require.NoError(t, err)
	assert.Contains(t, url, "calls/rec-1.wav")
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestPutSignedURL_ReturnsPresignedPutURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t, server)

	url, err := store.PutSignedURL(context.Background(), "calls/rec-2.wav", "audio/wav")

	require.NoError(t, err)
	assert.Contains(t, url, "calls/rec-2.wav")
}

func TestExists_TrueWhenHeadSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t, server)

	ok, err := store.Exists(context.Background(), "calls/rec-1.wav")

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExists_FalseWhenHeadFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newTestStore(t, server)

	ok, err := store.Exists(context.Background(), "calls/missing.wav")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultSignedURLTTL_IsFifteenMinutes(t *testing.T) {
	assert.Equal(t, 15*time.Minute, DefaultSignedURLTTL)
}

func TestSignedURL_UsesConfiguredBucket(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t, server)
	_, err := store.SignedURL(context.Background(), "calls/rec-3.wav")
	require.NoError(t, err)
	assert.True(t, strings.Contains(gotPath, "calliq-recordings") || strings.Contains(gotPath, "rec-3.wav"))
}
