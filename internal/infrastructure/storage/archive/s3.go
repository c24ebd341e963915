// Package archive uploads raw verification telemetry to S3-compatible
// object storage for offline analysis and replay.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appconfig "github.com/jihun-01/scratcha-backend/internal/config"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"go.uber.org/zap"
)

// ObjectPutter is the subset of *s3.Client the uploader needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Recorder counts upload results
type Recorder interface {
	ObserveArchive(result string)
}

type item struct {
	token     string
	telemetry *model.TelemetryInput
	at        time.Time
}

// Uploader archives telemetry on a fixed pool of goroutines. Archive never
// blocks: a full buffer drops the payload.
type Uploader struct {
	client   ObjectPutter
	bucket   string
	prefix   string
	timeout  time.Duration
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	items     chan item
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ domainRepo.TelemetryArchive = (*Uploader)(nil)

// NewS3Client builds a client for AWS or an S3-compatible endpoint
func NewS3Client(ctx context.Context, cfg appconfig.ArchiveConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewUploader starts workers goroutines draining a buffer of queueSize
func NewUploader(client ObjectPutter, cfg appconfig.ArchiveConfig, recorder Recorder, logger *zap.Logger) *Uploader {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	u := &Uploader{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		items:    make(chan item, queueSize),
	}
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.run()
	}
	return u
}

// Archive queues the payload for upload
func (u *Uploader) Archive(clientToken string, telemetry *model.TelemetryInput) {
	select {
	case u.items <- item{token: clientToken, telemetry: telemetry, at: u.now()}:
	default:
		u.observe("dropped")
		u.logger.Warn("Telemetry archive queue full, dropping payload", zap.String("client_token", clientToken))
	}
}

// Close stops accepting work and waits for queued uploads or ctx
func (u *Uploader) Close(ctx context.Context) error {
	u.closeOnce.Do(func() { close(u.items) })

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) run() {
	defer u.wg.Done()
	for it := range u.items {
		if err := u.upload(it); err != nil {
			u.observe("error")
			u.logger.Error("Telemetry archive upload failed",
				zap.String("client_token", it.token),
				zap.Error(err))
			continue
		}
		u.observe("uploaded")
	}
}

func (u *Uploader) upload(it item) error {
	raw, err := EncodeJSONL(it.telemetry)
	if err != nil {
		return fmt.Errorf("failed to serialize telemetry: %w", err)
	}
	body, err := Compress(raw)
	if err != nil {
		return fmt.Errorf("failed to compress telemetry: %w", err)
	}

	key := ObjectKey(u.prefix, it.token, it.at)
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3: %w", err)
	}

	u.logger.Debug("Telemetry archived",
		zap.String("bucket", u.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return nil
}

func (u *Uploader) observe(result string) {
	if u.recorder != nil {
		u.recorder.ObserveArchive(result)
	}
}
