// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides the Google Cloud integration layer. This file is the
// GCS implementation of the core's object-store boundary: scene clips and
// thumbnails live in one media bucket, addressed by path, and are served to
// browsers through V4 signed URLs. Signing goes through the IAM Credentials
// API so no service-account key file is ever present on disk.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
	"google.golang.org/api/iterator"
)

// GCSObjectStore implements the core store.ObjectStore interface over one
// bucket.
type GCSObjectStore struct {
	client      *storage.Client
	iamClient   *credentials.IamCredentialsClient
	bucket      string
	signerEmail string
}

// NewGCSObjectStore creates an object store over the given bucket.
// signerEmail is the service account whose identity signs access URLs.
func NewGCSObjectStore(client *storage.Client, iamClient *credentials.IamCredentialsClient, bucket, signerEmail string) *GCSObjectStore {
	return &GCSObjectStore{
		client:      client,
		iamClient:   iamClient,
		bucket:      bucket,
		signerEmail: signerEmail,
	}
}

// Upload writes data to the path and returns the path. The content type is
// sniffed from the bytes so browsers render signed URLs correctly regardless
// of what extension the path carries.
func (s *GCSObjectStore) Upload(ctx context.Context, data []byte, path string) (string, error) {
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		writer.ContentType = kind.MIME.Value
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("writing object %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing object %s: %w", path, err)
	}
	return path, nil
}

// Delete removes one object. A missing object is not an error.
func (s *GCSObjectStore) Delete(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting object %s: %w", path, err)
	}
	return nil
}

// DeleteByPrefix removes every object under the prefix. Used by the video
// deletion cascade to drop all of a video's extracted clips and thumbnails in
// one call.
func (s *GCSObjectStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	bucket := s.client.Bucket(s.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listing objects under %s: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("deleting object %s: %w", attrs.Name, err)
		}
	}
}

// SignedURL returns a time-limited V4 GET URL for the object, signed through
// the IAM Credentials API with the configured service account.
func (s *GCSObjectStore) SignedURL(path string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		GoogleAccessID: s.signerEmail,
		Expires:        time.Now().Add(ttl),
		SignBytes: func(b []byte) ([]byte, error) {
			resp, err := s.iamClient.SignBlob(context.Background(), &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.signerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		},
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(path, opts)
	if err != nil {
		return "", fmt.Errorf("signing URL for %s: %w", path, err)
	}
	return url, nil
}
