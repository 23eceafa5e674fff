package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
)

// S3Service uploads rendered whiteboard images. Implements the storage
// collaborator consumed by the Rendering Supervisor; never invoked from the
// hot synchronization path.
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      *config.S3Config
}

// NewS3Service S3Service constructor
func NewS3Service(cfg *config.S3Config) (*S3Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
	}, nil
}

// StoreWhiteboardImage uploads a rendered PNG and returns its object key and
// content type.
func (s *S3Service) StoreWhiteboardImage(ctx context.Context, board *model.Whiteboard, localPath string) (string, string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	const contentType = "image/png"
	key := fmt.Sprintf("whiteboards/%d/preview-%d.png", board.ID, time.Now().UnixMilli())

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.BucketName),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload render for board %d: %w", board.ID, err)
	}

	log.Printf("[S3] Uploaded render for board %d as %s", board.ID, key)
	return key, contentType, nil
}

// ObjectURL maps an object key to its public URL
func (s *S3Service) ObjectURL(objectKey string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + objectKey
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.BucketName, s.cfg.Region, objectKey)
}
