package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/utils"
)

// HashMetadataKey is the user metadata key holding an object's hex SHA-256.
const HashMetadataKey = "sha256"

// S3Config points an S3Source at a bucket prefix.
type S3Config struct {
	Bucket       string `json:"bucket" mapstructure:"bucket"`
	Prefix       string `json:"prefix,omitempty" mapstructure:"prefix"`
	Region       string `json:"region,omitempty" mapstructure:"region"`
	Endpoint     string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKey    string `json:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey    string `json:"secret_key,omitempty" mapstructure:"secret_key"`
	PageSize     int32  `json:"page_size,omitempty" mapstructure:"page_size"`
	HashMetadata bool   `json:"hash_metadata,omitempty" mapstructure:"hash_metadata"`
}

func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 remote: bucket is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("s3 remote: access_key and secret_key must be set together")
	}
	if c.PageSize < 0 || c.PageSize > 1000 {
		return fmt.Errorf("s3 remote: invalid page_size %d", c.PageSize)
	}
	return nil
}

// S3API is the subset of *s3.Client used by S3Source.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// given, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          32,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Source derives remote changes by listing a bucket prefix and comparing it
// with the remote baseline in the state store. S3 keeps no change history, so
// the cursor is informational only and every pass lists the whole prefix.
//
// Deletions are reported on the last page, once the whole listing is known.
// An S3Source must not serve two passes at the same time.
type S3Source struct {
	client   S3API
	cfg      S3Config
	baseline delta.StateReader

	known map[string]*delta.SyncState
	seen  map[string]struct{}
	now   func() time.Time
}

func NewS3Source(client S3API, cfg *S3Config, baseline delta.StateReader) (*S3Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrSourceNotConfigured
	}
	c := *cfg
	if c.Prefix != "" && !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
	return &S3Source{client: client, cfg: c, baseline: baseline, now: time.Now}, nil
}

func (s *S3Source) Name() string { return "s3" }

func (s *S3Source) Changes(ctx context.Context, cursor, pageToken string) (*ChangesPage, error) {
	if pageToken == "" {
		if err := s.loadBaseline(); err != nil {
			return nil, err
		}
	} else if s.seen == nil {
		return nil, fmt.Errorf("s3 changes: page token %q without a first page", pageToken)
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
	}
	if s.cfg.Prefix != "" {
		input.Prefix = aws.String(s.cfg.Prefix)
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}
	if s.cfg.PageSize > 0 {
		input.MaxKeys = aws.Int32(s.cfg.PageSize)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3 list %s/%s: %w", s.cfg.Bucket, s.cfg.Prefix, err)
	}

	page := &ChangesPage{}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		relPath := strings.TrimPrefix(key, s.cfg.Prefix)
		isDir := strings.HasSuffix(relPath, "/")
		relPath = strings.TrimSuffix(relPath, "/")
		if relPath == "" {
			continue
		}
		relPath = path.Clean(relPath)
		s.seen[relPath] = struct{}{}

		hash := ""
		if !isDir {
			hash = strings.Trim(aws.ToString(obj.ETag), `"`)
			if s.cfg.HashMetadata {
				if h, err := s.metadataHash(ctx, key); err != nil {
					return nil, err
				} else if h != "" {
					hash = h
				}
			}
		}

		entry := delta.DeltaEntry{
			Path:     relPath,
			Hash:     hash,
			Size:     aws.ToInt64(obj.Size),
			Modified: aws.ToTime(obj.LastModified),
			IsDir:    isDir,
		}

		known := s.known[relPath]
		switch {
		case known == nil:
			entry.Action = delta.ActionCreate
		case isDir:
			continue
		case known.RemoteHash != hash:
			entry.Action = delta.ActionModify
		default:
			continue
		}
		page.Entries = append(page.Entries, entry)
	}

	if aws.ToBool(out.IsTruncated) && aws.ToString(out.NextContinuationToken) != "" {
		page.NextPageToken = aws.ToString(out.NextContinuationToken)
		return page, nil
	}

	// last page: anything in the baseline that was not listed is gone
	for _, relPath := range slices.Sorted(maps.Keys(s.known)) {
		if _, ok := s.seen[relPath]; ok {
			continue
		}
		page.Entries = append(page.Entries, delta.DeltaEntry{
			Path:     relPath,
			Action:   delta.ActionDelete,
			Hash:     s.known[relPath].RemoteHash,
			Modified: s.now(),
		})
	}
	page.NewCursor = s.now().UTC().Format(time.RFC3339)

	slog.Debug("s3 listing done", "bucket", s.cfg.Bucket, "prefix", s.cfg.Prefix, "listed", len(s.seen), "baseline", len(s.known))
	s.known, s.seen = nil, nil
	return page, nil
}

// loadBaseline keeps the states this provider has seen remotely before.
func (s *S3Source) loadBaseline() error {
	s.known = make(map[string]*delta.SyncState)
	s.seen = make(map[string]struct{})
	if s.baseline == nil {
		return nil
	}

	states, err := s.baseline.GetAllSyncStates()
	if err != nil {
		return fmt.Errorf("s3 baseline: %w", err)
	}
	for _, st := range states {
		if st.Provider != s.Name() || st.RemoteID == "" {
			continue
		}
		s.known[st.LocalPath] = st
	}
	return nil
}

func (s *S3Source) metadataHash(ctx context.Context, key string) (string, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 head %s: %w", key, err)
	}
	return head.Metadata[HashMetadataKey], nil
}

// ObjectKey maps a slash separated relative path to its object key.
func (s *S3Source) ObjectKey(relPath string) string {
	return s.cfg.Prefix + utils.NormPath(relPath)
}
