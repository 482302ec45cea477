// Package s3sync pushes local day folders to S3. The sync is one
// directional: files whose remote copy is missing or carries a different
// modification timestamp are uploaded, and nothing remote is ever deleted.
package s3sync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Client is the subset of the S3 API the syncer needs.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

func NewClient(accessKey, secretKey, region string) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg), nil
}

// ParseDestination splits an s3://bucket/prefix destination string.
func ParseDestination(dest string) (bucket, prefix string, err error) {
	const scheme = "s3://"

	if !strings.HasPrefix(dest, scheme) {
		return "", "", fmt.Errorf("destination %q: want s3://bucket/prefix", dest)
	}

	rest := strings.TrimPrefix(dest, scheme)

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("destination %q: missing bucket", dest)
	}

	return bucket, strings.Trim(prefix, "/"), nil
}

type Action string

const (
	ActionUpload Action = "upload"
	ActionSkip   Action = "skip"
)

// Item is one planned sync decision.
type Item struct {
	LocalPath string
	Key       string
	Action    Action
	Reason    string
	Size      int64
}

type Syncer struct {
	client      Client
	bucket      string
	concurrency int
	timeout     time.Duration
}

func New(client Client, bucket string, concurrency int, timeout time.Duration) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Syncer{
		client:      client,
		bucket:      bucket,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Plan lists localDir recursively and decides, file by file, whether an
// upload is needed. The plan is sorted by key.
func (s *Syncer) Plan(ctx context.Context, localDir, keyPrefix string) ([]Item, error) {
	remote, err := s.listRemote(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, keyPrefix, err)
	}

	var items []Item

	err = filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}

		key := keyPrefix + "/" + filepath.ToSlash(rel)

		item := Item{
			LocalPath: path,
			Key:       key,
			Size:      info.Size(),
		}

		switch remoteMod, ok := remote[key]; {
		case !ok:
			item.Action = ActionUpload
			item.Reason = "missing on remote"
		case !remoteMod.Equal(info.ModTime().UTC().Truncate(time.Second)):
			item.Action = ActionUpload
			item.Reason = "modification time differs"
		default:
			item.Action = ActionSkip
			item.Reason = "up to date"
		}

		items = append(items, item)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	return items, nil
}

// Sync uploads everything Plan marked for upload. Uploads run concurrently
// up to the configured limit; one file's failure never cancels its siblings,
// it is collected and reported in the aggregate error.
func (s *Syncer) Sync(ctx context.Context, localDir, keyPrefix string) (uploaded, skipped int, err error) {
	plan, err := s.Plan(ctx, localDir, keyPrefix)
	if err != nil {
		return 0, 0, err
	}

	var (
		mu   sync.Mutex
		merr error
	)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, item := range plan {
		item := item // per-iteration copy; required while the go directive is below 1.22
		if item.Action != ActionUpload {
			skipped++

			continue
		}

		group.Go(func() error {
			if uerr := s.upload(ctx, item); uerr != nil {
				mu.Lock()
				merr = multierr.Append(merr, fmt.Errorf("%s: %w", item.LocalPath, uerr))
				mu.Unlock()

				// collected, not returned: siblings keep going
				return nil
			}

			mu.Lock()
			uploaded++
			mu.Unlock()

			return nil
		})
	}

	_ = group.Wait()

	return uploaded, skipped, merr
}

func (s *Syncer) upload(ctx context.Context, item Item) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := os.Open(item.LocalPath)
	if err != nil {
		return err
	}
	defer body.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(item.Key),
		Body:   body,
	})

	return err
}

func (s *Syncer) listRemote(ctx context.Context, keyPrefix string) (map[string]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ans := make(map[string]time.Time)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix + "/"),
	}

	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, err
		}

		for _, obj := range out.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}

			ans[*obj.Key] = obj.LastModified.UTC().Truncate(time.Second)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}

		input.ContinuationToken = out.NextContinuationToken
	}

	return ans, nil
}
