package oauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/acbridge/internal/config"
)

var ErrBlobNotFound = errors.New("oauth blob not found")

// BlobStore keeps a copy of the refresh state off the host, so a rebuilt
// bridge can resume without re-running the SmartThings authorization flow.
type BlobStore interface {
	Load(ctx context.Context, provider string) ([]byte, error)
	Save(ctx context.Context, provider string, data []byte) error
}

// NoopStore is used when no blob section is configured.
type NoopStore struct{}

func (NoopStore) Load(context.Context, string) ([]byte, error) { return nil, ErrBlobNotFound }

func (NoopStore) Save(context.Context, string, []byte) error { return nil }

// S3Store writes one object per provider under a prefix, e.g.
// acbridge/oauth/smartthings.json.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg *config.BlobConfig) (*S3Store, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("blob endpoint and bucket are required")
	}
	host, secure, err := endpointHost(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	creds, err := staticCredentials(cfg.AccessKeyFile, cfg.SecretKeyFile)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: strings.TrimSpace(cfg.Bucket), prefix: objectPrefix(cfg.Prefix)}, nil
}

func (s *S3Store) Load(ctx context.Context, provider string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(provider), minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, provider string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(provider), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"provider": provider},
	})
	return err
}

func (s *S3Store) key(provider string) string {
	return objectKey(s.prefix, provider)
}

func objectPrefix(raw string) string {
	prefix := strings.Trim(strings.TrimSpace(raw), "/")
	if prefix == "" {
		return config.DefaultOAuthPrefix
	}
	return prefix
}

func objectKey(prefix, provider string) string {
	return path.Join(prefix, provider+".json")
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

// endpointHost accepts a bare host[:port] (TLS assumed) or an http(s) URL.
func endpointHost(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse blob endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false, fmt.Errorf("invalid blob endpoint %q", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

func staticCredentials(accessKeyFile, secretKeyFile string) (*credentials.Credentials, error) {
	access, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secret, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}
	return credentials.NewStaticV4(access, secret, ""), nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
