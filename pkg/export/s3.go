package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// Uploader выгружает готовый файл экспорта и возвращает его адрес
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// S3Config - выгрузка экспорта в S3-совместимое хранилище
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	// Endpoint - адрес MinIO/Ceph и т.п. (пусто = AWS)
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`

	// AccessKeyID/SecretAccessKey - статические ключи (пусто = цепочка AWS по умолчанию)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Enabled - выгрузка настроена
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// objectUploader - часть manager.Uploader, нужная для выгрузки
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader выгружает файлы через s3 manager (multipart для больших файлов)
type S3Uploader struct {
	bucket   string
	prefix   string
	uploader objectUploader
}

// NewS3Uploader создает выгрузку по конфигурации
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, diag.New(diag.KindConfigInvalid, "export.s3", "bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, "export.s3", "failed to load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Uploader(cfg, manager.NewUploader(client)), nil
}

func newS3Uploader(cfg S3Config, u objectUploader) *S3Uploader {
	return &S3Uploader{bucket: cfg.Bucket, prefix: cfg.Prefix, uploader: u}
}

// Upload выгружает data под ключом prefix/name
func (u *S3Uploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	key := name
	if u.prefix != "" {
		key = path.Join(u.prefix, name)
	}

	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
