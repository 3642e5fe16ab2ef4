// Package media copies message attachments from the provider's short-lived
// URLs into durable S3 storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

// Config holds the S3 target settings.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
	PublicURL string
}

// Uploader implements sync.AttachmentStore on top of S3.
type Uploader struct {
	client     *s3.Client
	httpClient *resty.Client
	cfg        Config
}

// NewUploader builds the S3 client and the download client for provider
// attachment URLs.
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket cannot be empty")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 credentials are not configured")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	// Path-style is forced for dotted bucket names to avoid SSL certificate
	// mismatches on virtual-host addressing.
	usePathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = usePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 attachment uploader initialized")

	return &Uploader{
		client:     client,
		httpClient: resty.New().SetTimeout(30 * time.Second),
		cfg:        cfg,
	}, nil
}

// Upload downloads the attachment from the provider and stores it under
// accounts/{accountID}/{yyyy}/{mm}/{dd}/{messageID}/{filename}, returning
// the stored URL.
func (u *Uploader) Upload(ctx context.Context, accountID, messageID string, att models.Attachment) (string, error) {
	resp, err := u.httpClient.R().SetContext(ctx).Get(att.URL)
	if err != nil {
		return "", fmt.Errorf("download attachment %s: %w", att.URL, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("download attachment %s: status %s", att.URL, resp.Status())
	}
	data := resp.Body()

	contentType := att.ContentType
	if contentType == "" {
		contentType = resp.Header().Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := u.objectKey(accountID, messageID, att)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put attachment %s: %w", key, err)
	}

	log.Debug().
		Str("key", key).
		Str("accountID", accountID).
		Int("size", len(data)).
		Msg("Attachment stored in S3")
	return u.storedURL(key), nil
}

func (u *Uploader) objectKey(accountID, messageID string, att models.Attachment) string {
	name := att.FileName
	if name == "" {
		name = path.Base(strings.Split(att.URL, "?")[0])
	}
	if name == "" || name == "." || name == "/" {
		name = "attachment"
	}
	now := time.Now().UTC()
	return fmt.Sprintf("accounts/%s/%s/%s/%s", accountID, now.Format("2006/01/02"), messageID, name)
}

func (u *Uploader) storedURL(key string) string {
	if u.cfg.PublicURL != "" {
		return strings.TrimRight(u.cfg.PublicURL, "/") + "/" + key
	}
	if u.cfg.Endpoint != "" {
		return strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}
