package artifact

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// S3API — часть клиента S3, используемая S3Sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config — настройки S3Sink.
type S3Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint — адрес S3-совместимого хранилища (MinIO). Пусто — AWS.
	Endpoint string
}

// S3Sink загружает артефакты в s3://{bucket}/{prefix}/{jobID}/{name}/.
type S3Sink struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Sink создаёт S3Sink с клиентом из стандартной цепочки AWS credentials.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3SinkWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkWithClient создаёт S3Sink с готовым клиентом.
func NewS3SinkWithClient(client S3API, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Store загружает файлы, совпавшие с p.
func (s *S3Sink) Store(ctx context.Context, jobID, name, p string) (domain.ArtifactHandle, error) {
	files, err := collectFiles(p)
	if err != nil {
		return domain.ArtifactHandle{}, err
	}

	sum, size, err := digest(files)
	if err != nil {
		return domain.ArtifactHandle{}, err
	}

	base := path.Join(s.prefix, jobID, name)
	for _, f := range files {
		if err := s.put(ctx, path.Join(base, f.rel), f.abs); err != nil {
			return domain.ArtifactHandle{}, err
		}
	}

	return domain.ArtifactHandle{
		URI:    fmt.Sprintf("s3://%s/%s/", s.bucket, base),
		Digest: sum,
		Size:   size,
		Files:  len(files),
	}, nil
}

func (s *S3Sink) put(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
