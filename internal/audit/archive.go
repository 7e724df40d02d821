package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"greenfloor/internal/config"
	"greenfloor/internal/repository"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver exports one UTC day of audit events as JSON lines.
type S3Archiver struct {
	Repo   repository.AuditRepository
	Client objectPutter
	Bucket string
	Prefix string
	Logger *zap.Logger
	Now    func() time.Time
}

func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, repo repository.AuditRepository, logger *zap.Logger) (*S3Archiver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("archive bucket not configured")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Archiver{
		Repo:   repo,
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
		Logger: logger,
	}, nil
}

// Key is <prefix>/YYYY/MM/DD.jsonl.
func (a *S3Archiver) Key(day time.Time) string {
	day = day.UTC()
	return path.Join(strings.Trim(a.Prefix, "/"), day.Format("2006"), day.Format("01"), day.Format("02")+".jsonl")
}

// ArchivePreviousDay is the cron entry point.
func (a *S3Archiver) ArchivePreviousDay(ctx context.Context) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	_, err := a.ArchiveDay(ctx, now().UTC().AddDate(0, 0, -1))
	return err
}

func (a *S3Archiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	if a == nil || a.Repo == nil || a.Client == nil {
		return 0, nil
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	asc := true

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	total := 0
	const page = 500
	for offset := 0; ; offset += page {
		items, err := a.Repo.ListAuditEvents(ctx, repository.ListAuditEventsParams{
			Limit:  page,
			Offset: offset,
			Since:  &start,
			Until:  &end,
			Asc:    &asc,
		})
		if err != nil {
			return total, err
		}
		for _, item := range items {
			line, err := json.Marshal(kafkaEvent{
				ID:        item.ID,
				EventType: item.EventType,
				MarketID:  item.MarketID,
				Payload:   json.RawMessage(item.Payload),
				CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				return total, err
			}
			_, _ = w.Write(line)
			_ = w.WriteByte('\n')
			total++
		}
		if len(items) < page {
			break
		}
	}
	if total == 0 {
		return 0, nil
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	key := a.Key(start)
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("upload audit archive: %w", err)
	}
	if a.Logger != nil {
		a.Logger.Info("audit archive uploaded", zap.String("key", key), zap.Int("events", total))
	}
	return total, nil
}
