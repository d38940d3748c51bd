package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// S3Config points a project at a bucket. Endpoint and path-style addressing
// cover S3-compatible stores (MinIO, R2) like the real thing.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
}

// S3Store keeps payloads under <prefix>/objects/ and the head pointer at
// <prefix>/HEAD. Pushes are atomic per object; HEAD is written last.
type S3Store struct {
	client *s3.Client
	cfg    *S3Config
}

func NewS3Store(cfg *S3Config) (*S3Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, cfg: cfg}, nil
}

func (s *S3Store) objectKey(ref Ref) string {
	return path.Join(s.cfg.Prefix, objectsDir, string(ref)+".tar.gz")
}

func (s *S3Store) headKey() string {
	return path.Join(s.cfg.Prefix, headFile)
}

// Push spools the payload to a temp file first: PutObject wants a seekable
// body with a known length, and the archive size is not known up front.
func (s *S3Store) Push(ctx context.Context, payload io.Reader) (Ref, error) {
	spool, err := os.CreateTemp("", "snapbox-push-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("spool payload: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	size, err := io.Copy(spool, payload)
	if err != nil {
		return "", fmt.Errorf("spool payload: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	ref := Ref(uuid.NewString())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.objectKey(ref)),
		Body:          spool,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("put payload: %w", err)
	}

	head, err := jsonMarshal(headRecord{Ref: ref, PushedAt: time.Now()})
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.headKey()),
		Body:          bytes.NewReader(head),
		ContentLength: aws.Int64(int64(len(head))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put head: %w", err)
	}
	return ref, nil
}

func (s *S3Store) FetchHead(ctx context.Context) (Ref, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.headKey()),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return "", ErrNoRemoteHead
		}
		return "", fmt.Errorf("get head: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", err
	}
	var record headRecord
	if err := jsonUnmarshal(data, &record); err != nil {
		return "", fmt.Errorf("decode head: %w", err)
	}
	return record.Ref, nil
}

func (s *S3Store) Pull(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("unknown remote ref %q", ref)
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}
	return out.Body, nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	return errors.As(err, &noKey)
}
