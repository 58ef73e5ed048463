package s3blob

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// Lister enumerates objects in the bucket. The archiver scans existing
// segment keys through it to find where the previous export stopped.
type Lister struct {
	client *s3.Client
	bucket string
}

// NewLister creates a Lister over the client's configured bucket.
func NewLister(c *Client) *Lister {
	return &Lister{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// List returns metadata for all objects whose key starts with prefix. It
// follows ContinuationTokens until every matching object has been collected.
func (l *Lister) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo

	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}
