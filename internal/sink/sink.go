// Package sink publishes rendered report files to a local directory or an
// S3 compatible bucket.
package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/wwarncalc/internal/report"
	"github.com/KaramelBytes/wwarncalc/internal/utils"
)

// Sink stores named report files.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	// Location describes where name ends up, for logs and messages.
	Location(name string) string
}

// Options selects and configures a sink.
type Options struct {
	// OutputDir is a local directory or an s3://bucket/prefix URL.
	OutputDir   string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Open returns an S3 sink when OutputDir is an s3:// URL or S3Bucket is set,
// and a local directory sink otherwise.
func Open(ctx context.Context, opt Options) (Sink, error) {
	if bucket, prefix, ok := ParseS3URL(opt.OutputDir); ok {
		return NewS3(ctx, S3Config{Bucket: bucket, Prefix: prefix, Region: opt.S3Region, Endpoint: opt.S3Endpoint, PathStyle: opt.S3PathStyle})
	}
	if opt.S3Bucket != "" {
		prefix := ""
		if opt.OutputDir != "." {
			prefix = opt.OutputDir
		}
		return NewS3(ctx, S3Config{Bucket: opt.S3Bucket, Prefix: prefix, Region: opt.S3Region, Endpoint: opt.S3Endpoint, PathStyle: opt.S3PathStyle})
	}
	return NewDir(opt.OutputDir)
}

// ParseS3URL splits s3://bucket/prefix into its parts.
func ParseS3URL(u string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(u, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}

// Dir writes files into a local directory.
type Dir struct {
	Path string
}

// NewDir creates the directory if needed.
func NewDir(path string) (*Dir, error) {
	if path == "" {
		path = "."
	}
	if err := utils.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Dir{Path: path}, nil
}

func (d *Dir) Location(name string) string { return filepath.Join(d.Path, name) }

// Put atomically writes data to the named file.
func (d *Dir) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(d.Location(name), data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

const publishWorkers = 4

// Publish stores every output concurrently and stops at the first failure.
func Publish(ctx context.Context, s Sink, outs []report.Output, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(publishWorkers)
	for _, o := range outs {
		o := o
		g.Go(func() error {
			if err := s.Put(ctx, o.Name, o.Data); err != nil {
				return err
			}
			log.Info("wrote report", zap.String("file", s.Location(o.Name)), zap.Int("bytes", len(o.Data)))
			return nil
		})
	}
	return g.Wait()
}
