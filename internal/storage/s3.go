// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage stores generated posters, template images and user
// uploads in S3-compatible buckets (Supabase Storage or any S3). Generated
// and template images go to the public bucket and are served directly;
// user uploads go to the private bucket and are shared through presigned
// URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// Config holds the bucket connection settings.
type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBucket  string
	PrivateBucket string
	PublicURL     string // optional CDN or Supabase public object URL
}

// Client wraps an S3 client bound to the public and private buckets.
type Client struct {
	s3            *s3.Client
	presigner     *s3.PresignClient
	publicBucket  string
	privateBucket string
	endpoint      string
	publicURL     string
}

// New creates a path-style S3 client. Returns (nil, nil) when endpoint or
// credentials are empty so the server can start without storage; features
// that need it answer 503.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, nil
	}
	if cfg.PublicBucket == "" {
		return nil, errors.New("storage: public bucket name is required")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	})

	return &Client{
		s3:            client,
		presigner:     s3.NewPresignClient(client),
		publicBucket:  cfg.PublicBucket,
		privateBucket: cfg.PrivateBucket,
		endpoint:      endpoint,
		publicURL:     strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// PutPublic stores data in the public bucket and returns its URL.
func (c *Client) PutPublic(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := c.put(ctx, c.publicBucket, key, contentType, data, true); err != nil {
		return "", err
	}
	return c.FileURL(key), nil
}

// PutPrivate stores data in the private bucket.
func (c *Client) PutPrivate(ctx context.Context, key, contentType string, data []byte) error {
	if c.privateBucket == "" {
		return errors.New("storage: private bucket is not configured")
	}
	return c.put(ctx, c.privateBucket, key, contentType, data, false)
}

func (c *Client) put(ctx context.Context, bucket, key, contentType string, data []byte, public bool) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	}
	if public {
		input.ACL = s3types.ObjectCannedACLPublicRead
	} else {
		input.CacheControl = aws.String("private, no-store")
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeletePublic removes objects from the public bucket. Empty keys are
// skipped; every key is attempted and the errors are joined.
func (c *Client) DeletePublic(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.publicBucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("s3 delete %s/%s: %w", c.publicBucket, key, err))
		}
	}
	return errors.Join(errs...)
}

// FileURL returns the public URL for a key in the public bucket.
func (c *Client) FileURL(key string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return c.endpoint + "/" + c.publicBucket + "/" + key
}

// PresignPrivate returns a GET URL for a private object, valid for expires.
// Upstream AI providers fetch user uploads through these.
func (c *Client) PresignPrivate(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.privateBucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s/%s: %w", c.privateBucket, key, err)
	}
	return req.URL, nil
}

// KeyFromURL returns the object key of a public URL served by this
// storage, or ("", false) for foreign URLs.
func (c *Client) KeyFromURL(rawURL string) (string, bool) {
	if c.publicURL != "" {
		if key, ok := strings.CutPrefix(rawURL, c.publicURL+"/"); ok {
			return key, true
		}
	}
	if key, ok := strings.CutPrefix(rawURL, c.endpoint+"/"+c.publicBucket+"/"); ok {
		return key, true
	}
	return "", false
}

// GeneratedKey names a user's generated poster: generated/<user>/<yyyy>/<mm>/<id><suffix><ext>.
func GeneratedKey(userID, id uuid.UUID, now time.Time, suffix, ext string) string {
	return fmt.Sprintf("generated/%s/%d/%02d/%s%s%s", userID, now.Year(), now.Month(), id, suffix, ext)
}

// TemplateKey names a marketplace template image.
func TemplateKey(id uuid.UUID, suffix, ext string) string {
	return fmt.Sprintf("templates/%s%s%s", id, suffix, ext)
}

// UploadKey names a user upload in the private bucket.
func UploadKey(userID, id uuid.UUID, ext string) string {
	return fmt.Sprintf("uploads/%s/%s%s", userID, id, ext)
}
