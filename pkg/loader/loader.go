// Package loader reads chunk files produced by the external chunker. A
// chunk file is JSON Lines, one {chunk_id, text, relative_path} object per
// line, stored on the local filesystem or in an S3 bucket.
package loader

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const SchemeS3 = "s3"

// Location addresses a chunk file. Bucket is empty for local files.
type Location struct {
	Bucket string
	Path   string
}

func (l Location) IsS3() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.IsS3() {
		return SchemeS3 + "://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// ParseLocation accepts a local path or an s3://bucket/key URL.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	if !strings.HasPrefix(strings.ToLower(raw), SchemeS3+"://") {
		return Location{Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("s3 location %q needs a bucket and a key", raw)
	}
	return Location{Bucket: u.Host, Path: key}, nil
}

// FileLoader fetches the raw bytes of a chunk file.
type FileLoader interface {
	GetFileText(ctx context.Context, loc Location) ([]byte, error)
}

// Mux dispatches local locations to Local and S3 locations to S3.
type Mux struct {
	Local FileLoader
	S3    FileLoader
}

func (m Mux) GetFileText(ctx context.Context, loc Location) ([]byte, error) {
	l := m.Local
	if loc.IsS3() {
		l = m.S3
	}
	if l == nil {
		return nil, fmt.Errorf("no loader configured for %s", loc)
	}
	return l.GetFileText(ctx, loc)
}
