package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	publicHost  = "https://storage.googleapis.com"
	pingTimeout = 5 * time.Second
)

// ErrObjectExists is returned when an upload targets an object name that is
// already taken.
var ErrObjectExists = errors.New("gcs object already exists")

// Client stores applicant documents in a single bucket.
type Client struct {
	storage       *storage.Client
	defaultBucket string
	logg          *logger.Logger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Object describes a stored file.
type Object struct {
	Bucket      string
	Name        string
	URL         string
	ContentType string
	Size        int64
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	var opts []option.ClientOption
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	client := &Client{
		storage:       sc,
		defaultBucket: cfg.BucketName,
		logg:          logg,
	}

	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

// Upload streams r into objectName. Existing objects are never overwritten.
func (c *Client) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (*Object, error) {
	if c == nil || c.storage == nil {
		return nil, errors.New("gcs client not initialized")
	}
	handle := c.storage.Bucket(c.defaultBucket).Object(objectName)
	writer := handle.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	size, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return nil, ErrObjectExists
		}
		return nil, fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil, ErrObjectExists
		}
		return nil, fmt.Errorf("finalize gcs object %s: %w", objectName, err)
	}

	return &Object{
		Bucket:      c.defaultBucket,
		Name:        objectName,
		URL:         PublicURL(c.defaultBucket, objectName),
		ContentType: contentType,
		Size:        size,
	}, nil
}

// Delete removes an object. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, objectName string) error {
	if c == nil || c.storage == nil {
		return errors.New("gcs client not initialized")
	}
	err := c.storage.Bucket(c.defaultBucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %s: %w", objectName, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL for the object.
func (c *Client) SignedURL(objectName string, expiry time.Duration) (string, error) {
	if c == nil || c.storage == nil {
		return "", errors.New("gcs client not initialized")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return c.storage.Bucket(c.defaultBucket).SignedURL(objectName, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiry),
	})
}

func (c *Client) Close() error {
	if c == nil || c.storage == nil {
		return nil
	}
	return c.storage.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.storage == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket name is required")
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := c.storage.Bucket(c.defaultBucket).Attrs(pingCtx); err != nil {
		return fmt.Errorf("read bucket attrs: %w", err)
	}
	return nil
}

// PublicURL is the canonical https location of an object.
func PublicURL(bucket, objectName string) string {
	segments := strings.Split(objectName, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s", publicHost, bucket, strings.Join(segments, "/"))
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusPreconditionFailed
	}
	return false
}
