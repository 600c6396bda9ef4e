package media

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"groupswipe/models"
)

// PresignAPI is the subset of *s3.PresignClient used for artwork.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ArtworkSigner hands out short-lived URLs for poster images kept in S3.
type ArtworkSigner struct {
	Presigner PresignAPI
	Bucket    string
	TTL       time.Duration
	now       func() time.Time
}

// NewArtworkSigner presigns against bucket with client.
func NewArtworkSigner(client *s3.Client, bucket string, ttl time.Duration) *ArtworkSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ArtworkSigner{
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
		TTL:       ttl,
		now:       time.Now,
	}
}

// Sign sets item.PosterURL to a presigned GET for item.PosterPath.
// Items without a poster are left alone.
func (s *ArtworkSigner) Sign(ctx context.Context, item *models.MediaItem) error {
	if item.PosterPath == "" {
		return nil
	}
	req, err := s.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(posterKey(item.PosterPath)),
	}, s3.WithPresignExpires(s.TTL))
	if err != nil {
		return fmt.Errorf("failed to presign poster for %s: %w", item.ID, err)
	}
	item.PosterURL = req.URL
	return nil
}

// UploadURL returns a presigned PUT for a new poster of itemID together with
// the object key to store as the item's PosterPath.
func (s *ArtworkSigner) UploadURL(ctx context.Context, itemID, contentType string) (string, string, error) {
	if !models.ValidID(itemID) {
		return "", "", fmt.Errorf("invalid item id %q", itemID)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	key := path.Join("posters", itemID, now().UTC().Format("20060102150405")+"-"+uuid.NewString())

	req, err := s.Presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.TTL))
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload for %s: %w", itemID, err)
	}
	return req.URL, key, nil
}

// posterKey maps an upstream poster path ("/abc.jpg") to its object key.
func posterKey(posterPath string) string {
	if strings.HasPrefix(posterPath, "posters/") {
		return posterPath
	}
	return "posters/" + strings.TrimPrefix(posterPath, "/")
}
