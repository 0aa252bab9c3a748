// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/promptmint/promptmint-backend/internal/config"
)

// StorageService uploads accounting exports to S3.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
}

type ExportResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{config: config}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// UploadLedgerExport stores a CSV export under exports/ledger/ and returns
// its location.
func (s *StorageService) UploadLedgerExport(name string, data []byte) (*ExportResult, error) {
	key := fmt.Sprintf("exports/ledger/%s-%s.csv", name, time.Now().UTC().Format("20060102T150405Z"))

	if s.s3Client == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.config.AWS.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	return &ExportResult{
		Key:  key,
		URL:  fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.AWS.S3Bucket, s.config.AWS.Region, key),
		Size: int64(len(data)),
	}, nil
}
