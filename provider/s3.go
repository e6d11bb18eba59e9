package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/franksops/filerelay/engine"
)

// SchemeS3 is the handle scheme of S3Source: s3://bucket/key.
const SchemeS3 = "s3"

// ensure interface is implemented
var _ Lister = (*S3Source)(nil)

// S3Source reads objects from S3. Paths passed to Stat and List are
// "bucket/prefix".
type S3Source struct {
	client *s3.Client
}

// NewS3Source wraps an existing client.
func NewS3Source(client *s3.Client) *S3Source {
	return &S3Source{client: client}
}

// NewS3SourceFromEnv creates an S3Source from the default AWS configuration chain.
func NewS3SourceFromEnv(ctx context.Context) (*S3Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return NewS3Source(s3.NewFromConfig(cfg)), nil
}

// splitBucket splits "bucket/some/key" into its bucket and key.
func splitBucket(p string) (string, string) {
	p = strings.TrimPrefix(p, "/")
	bucket, key, _ := strings.Cut(p, "/")
	return bucket, key
}

// Handle returns the s3:// handle for a "bucket/key" path.
func (p *S3Source) Handle(pth string) string {
	return SchemeS3 + "://" + strings.TrimPrefix(pth, "/")
}

func (p *S3Source) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	bucket, key := splitBucket(strings.TrimPrefix(handle, SchemeS3+"://"))
	if bucket == "" || key == "" {
		return nil, 0, fmt.Errorf("%w: malformed s3 handle %q", engine.ErrSourceUnavailable, handle)
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: get s3://%s/%s: %w", engine.ErrSourceUnavailable, bucket, key, err)
	}

	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

// Stat returns the FileInfo for the given path.
func (p *S3Source) Stat(ctx context.Context, pth string) (FileInfo, error) {
	bucket, key := splitBucket(pth)

	// exact match
	headOut, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil && key != "" {
		var modTime time.Time
		if headOut.LastModified != nil {
			modTime = *headOut.LastModified
		}
		var size int64
		if headOut.ContentLength != nil {
			size = *headOut.ContentLength
		}
		return &fileInfo{
			name:    path.Base(key),
			size:    size,
			isDir:   strings.HasSuffix(key, "/"),
			modTime: modTime,
		}, nil
	}

	// maybe a prefix
	dirPrefix := key
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}
	listOut, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}
	if len(listOut.Contents) > 0 || len(listOut.CommonPrefixes) > 0 {
		return &fileInfo{name: path.Base(pth), isDir: true}, nil
	}
	return nil, fmt.Errorf("file not found: %s", pth)
}

// List returns the objects and common prefixes directly under the given path.
func (p *S3Source) List(ctx context.Context, pth string) ([]FileInfo, error) {
	bucket, dirPrefix := splitBucket(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	var continuationToken *string

	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(dirPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirPrefix), "/")
			infos = append(infos, &fileInfo{name: name, isDir: true})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" || strings.HasSuffix(name, "/") {
				// the prefix itself, or a folder placeholder
				continue
			}
			infos = append(infos, &fileInfo{
				name:    name,
				size:    aws.ToInt64(obj.Size),
				modTime: aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return infos, nil
}
