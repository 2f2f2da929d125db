// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Source lists and opens input files.
type Source interface {
	// List returns file names relative to the source in lexical order.
	List(ctx context.Context) ([]string, error)

	// Open returns the raw content of a listed file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// String describes the source for logs.
	String() string
}

// -----------------------------------------------------------------------------
// Local directory
// -----------------------------------------------------------------------------

// DirSource reads regular files inside a local directory. With Nested set,
// files one level down are listed too as "subdir/name", which fits a
// coverage tree with one data file per fuzzer directory.
type DirSource struct {
	Dir    string
	Nested bool
}

// List implements Source.
func (s DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.Dir, err)
	}
	var names []string
	for _, e := range entries {
		switch {
		case e.Type().IsRegular():
			names = append(names, e.Name())
		case e.IsDir() && s.Nested:
			sub, err := os.ReadDir(filepath.Join(s.Dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", filepath.Join(s.Dir, e.Name()), err)
			}
			for _, f := range sub {
				if f.Type().IsRegular() {
					names = append(names, path.Join(e.Name(), f.Name()))
				}
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

// Open implements Source.
func (s DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.Dir, filepath.FromSlash(name)))
}

func (s DirSource) String() string {
	return s.Dir
}

// FileSource is a single local file, listed under its base name.
type FileSource struct {
	Path string
}

// List implements Source.
func (s FileSource) List(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, err
	}
	return []string{filepath.Base(s.Path)}, nil
}

// Open implements Source.
func (s FileSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

func (s FileSource) String() string {
	return s.Path
}

// -----------------------------------------------------------------------------
// Google Cloud Storage
// -----------------------------------------------------------------------------

// GCSSource reads objects under a prefix of a Cloud Storage bucket. Only
// objects directly under the prefix are listed.
type GCSSource struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSource opens a Cloud Storage client for gs://bucket/prefix.
//
// Inputs:
//   - ctx: Context for client creation.
//   - bucket: Bucket name.
//   - prefix: Object prefix, with or without a trailing slash.
//   - saKeyPath: Service account key file. Empty uses application default
//     credentials.
func NewGCSSource(ctx context.Context, bucket, prefix, saKeyPath string) (*GCSSource, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCSSource{client: client, bucket: bucket, prefix: prefix}, nil
}

// ParseGCSURL splits "gs://bucket/prefix" into bucket and prefix.
func ParseGCSURL(url string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("not a gs:// url: %q", url)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, prefix, nil
}

// List implements Source.
func (s *GCSSource) List(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix, Delimiter: "/"})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.bucket, s.prefix, err)
		}
		if attrs.Name == "" {
			continue
		}
		names = append(names, path.Base(attrs.Name))
	}
	slices.Sort(names)
	return names, nil
}

// Open implements Source.
func (s *GCSSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.prefix + name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s%s: %w", s.bucket, s.prefix, name, err)
	}
	return r, nil
}

// Close releases the client.
func (s *GCSSource) Close() error {
	return s.client.Close()
}

func (s *GCSSource) String() string {
	return "gs://" + s.bucket + "/" + s.prefix
}
