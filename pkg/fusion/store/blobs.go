// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Blobstore stores catalog snapshots by key.
type Blobstore interface {
	// Upload the contents of src under key, replacing any previous blob.
	Upload(ctx context.Context, key string, src io.Reader) error

	// Download the blob stored under key. The caller must close the returned reader.
	// If no such blob exists, it returns an error for which errors.Is(err, os.ErrNotExist) is true.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// FileBlobstore stores blobs as files in a local directory.
type FileBlobstore struct {
	Dir string
}

var _ Blobstore = (*FileBlobstore)(nil)

// Upload implements Blobstore. The file is written to a temporary file first, and then renamed, so
// readers never see a partially written blob.
func (b *FileBlobstore) Upload(ctx context.Context, key string, src io.Reader) error {
	log := klog.FromContext(ctx)
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating blob directory %q", b.Dir)
	}
	destinationPath := filepath.Join(b.Dir, key)
	tempFile, err := os.CreateTemp(b.Dir, key+".tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil {
				log.Error(err, "removing temp file", "path", tempFile.Name())
			}
		}
	}()

	shouldCloseTempFile := true
	defer func() {
		if shouldCloseTempFile {
			if err := tempFile.Close(); err != nil {
				log.Error(err, "closing temp file", "path", tempFile.Name())
			}
		}
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return errors.Wrapf(err, "writing blob %q", key)
	}
	if err := tempFile.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	shouldCloseTempFile = false
	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return errors.Wrap(err, "renaming temp file")
	}
	shouldDeleteTempFile = false
	log.V(1).Info("wrote blob", "path", destinationPath, "bytes", n)
	return nil
}

// Download implements Blobstore.
func (b *FileBlobstore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(b.Dir, key)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening blob %q", path)
	}
	klog.FromContext(ctx).V(1).Info("reading blob", "path", path)
	return f, nil
}

// GCSBlobstore stores blobs as objects in a Google Cloud Storage bucket.
type GCSBlobstore struct {
	Bucket string
}

var _ Blobstore = (*GCSBlobstore)(nil)

// Upload implements Blobstore.
func (b *GCSBlobstore) Upload(ctx context.Context, key string, src io.Reader) error {
	log := klog.FromContext(ctx)
	gcsURL := "gs://" + b.Bucket + "/" + key

	client, err := storage.NewClient(ctx)
	if err != nil {
		return errors.Wrap(err, "creating GCS storage client")
	}
	defer client.Close()

	log.Info("uploading blob to GCS", "destination", gcsURL)
	startedAt := time.Now()
	w := client.Bucket(b.Bucket).Object(key).NewWriter(ctx)
	n, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "uploading to GCS %q", gcsURL)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "closing GCS writer")
	}
	log.Info("uploaded blob to GCS", "url", gcsURL, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

// Download implements Blobstore.
func (b *GCSBlobstore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	log := klog.FromContext(ctx)
	gcsURL := "gs://" + b.Bucket + "/" + key

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS storage client")
	}
	log.Info("downloading blob from GCS", "source", gcsURL)
	r, err := client.Bucket(b.Bucket).Object(key).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.Wrapf(os.ErrNotExist, "object %q", gcsURL)
		}
		return nil, errors.Wrapf(err, "opening object from GCS %q", gcsURL)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

// gcsReader closes the storage client together with the object reader.
type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if clientErr := r.client.Close(); err == nil {
		err = clientErr
	}
	return err
}
