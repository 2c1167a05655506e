package storage

import (
	"context"
	"io"
	"net/http"
	"testing"

	"hola-chat/internal/testutil/tests3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"public base", S3Config{Region: "eu-west-1", Bucket: "b", PublicBase: "https://cdn.example.com/storage/"}, "https://cdn.example.com/storage/b/u1/u1-1.png"},
		{"endpoint", S3Config{Region: "eu-west-1", Bucket: "b", Endpoint: "http://localhost:4566"}, "http://localhost:4566/b/u1/u1-1.png"},
		{"aws", S3Config{Region: "eu-west-1", Bucket: "b"}, "https://b.s3.eu-west-1.amazonaws.com/u1/u1-1.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{cfg: tt.cfg}
			assert.Equal(t, tt.want, c.FileURL("", "u1/u1-1.png"))
		})
	}

	c := &Client{cfg: S3Config{Bucket: "b", PublicBase: "https://cdn"}}
	assert.Equal(t, "https://cdn/other/a%20b/c.txt", c.FileURL("other", "a b/c.txt"))
	assert.Empty(t, c.FileURL("b", ""))
}

func TestNewClient_RequiresRegionAndBucket(t *testing.T) {
	_, err := NewClient(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestUpload_LocalStack(t *testing.T) {
	endpoint := tests3.StartS3(t)
	ctx := context.Background()
	client, err := NewClient(ctx, S3Config{
		Region:    "us-east-1",
		Bucket:    tests3.Bucket,
		AccessKey: "test",
		SecretKey: "test",
		Endpoint:  endpoint,
	})
	require.NoError(t, err)

	_, err = client.Upload(ctx, "", "u1/u1-1.txt", []byte("hello"), "")
	assert.Error(t, err)

	url, err := client.Upload(ctx, "", "u1/u1-1.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, endpoint+"/"+tests3.Bucket+"/u1/u1-1.txt", url)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
}
