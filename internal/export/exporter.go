package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/velora/crm-server/internal/config"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
)

// Uploader is the slice of the S3 API the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes CSV exports (audience snapshots, customer base dumps) to
// the compliance bucket.
type Exporter struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewExporter builds an Exporter from the exports config, using the default
// AWS credential chain.
func NewExporter(ctx context.Context, cfg config.ExportConfig) (*Exporter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)

	// Verify bucket access early. A failure is logged but not fatal so the
	// server still boots when exports are misconfigured.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.S3Bucket)}); err != nil {
		logger.Warn("export: bucket access check failed", "bucket", cfg.S3Bucket, "error", err)
	}

	return &Exporter{uploader: client, bucket: cfg.S3Bucket, prefix: cfg.Prefix}, nil
}

// NewExporterWithUploader wires a custom uploader. Used by tests.
func NewExporterWithUploader(uploader Uploader, bucket, prefix string) *Exporter {
	return &Exporter{uploader: uploader, bucket: bucket, prefix: prefix}
}

// ExportAudience writes the per-recipient delivery rows of a campaign as a
// CSV snapshot and returns the object key.
func (e *Exporter) ExportAudience(ctx context.Context, c *domain.Campaign, logs []domain.CampaignLog) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"customer_id", "email", "status", "message_id", "error", "sent_at"}); err != nil {
		return "", err
	}
	for _, row := range logs {
		sentAt := ""
		if row.SentAt != nil {
			sentAt = row.SentAt.Format(time.RFC3339)
		}
		if err := w.Write([]string{
			row.CustomerID, row.Email, string(row.Status), row.MessageID, row.ErrorMessage, sentAt,
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/campanhas/%s-%s.csv", e.prefix, c.ID, time.Now().Format("2006-01-02"))
	if err := e.put(ctx, key, buf.Bytes()); err != nil {
		return "", err
	}

	logger.Info("export: audience snapshot written", "campaign_id", c.ID, "key", key, "rows", len(logs))
	return key, nil
}

// ExportCustomers dumps the customer base, one row per customer, and returns
// the object key.
func (e *Exporter) ExportCustomers(ctx context.Context, customers []domain.Customer) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{
		"id", "email", "nome", "status", "dias_sem_comprar", "valor_total_gasto",
		"numero_pedidos", "marketing_emails", "blocked_communications",
	}); err != nil {
		return "", err
	}
	for i := range customers {
		c := &customers[i]
		if err := w.Write([]string{
			c.ID, c.Email, c.Name, string(c.Status),
			strconv.Itoa(c.DaysSinceLastOrder),
			strconv.FormatFloat(c.TotalSpent, 'f', 2, 64),
			strconv.Itoa(c.OrderCount),
			strconv.FormatBool(c.MarketingEmails),
			strconv.FormatBool(c.BlockedCommunications),
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/clientes/base-%s.csv", e.prefix, time.Now().Format("2006-01-02"))
	if err := e.put(ctx, key, buf.Bytes()); err != nil {
		return "", err
	}

	logger.Info("export: customer base written", "key", key, "rows", len(customers))
	return key, nil
}

func (e *Exporter) put(ctx context.Context, key string, body []byte) error {
	_, err := e.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return nil
}
