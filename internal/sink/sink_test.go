package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/wwarncalc/internal/report"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	fail    string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if *in.Key == f.fail {
		return nil, errors.New("access denied")
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = string(b)
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func outputs() []report.Output {
	return []report.Output{
		{Name: "wwarn.all.calcs", Data: []byte("all")},
		{Name: "wwarn.ags.calcs", Data: []byte("ags")},
		{Name: "wwarn.pfcrt_76.tsv", Data: []byte("table")},
	}
}

func TestPublishToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := Open(context.Background(), Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, Publish(context.Background(), s, outputs(), nil))
	for _, o := range outputs() {
		got, err := os.ReadFile(filepath.Join(dir, o.Name))
		require.NoError(t, err)
		assert.Equal(t, string(o.Data), string(got))
	}
	assert.Equal(t, filepath.Join(dir, "x.tsv"), s.Location("x.tsv"))
}

func TestPublishToS3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	s := NewS3WithClient(fake, "reports", "runs/2024")
	require.NoError(t, Publish(context.Background(), s, outputs(), nil))
	assert.Equal(t, "all", fake.objects["reports/runs/2024/wwarn.all.calcs"])
	assert.Equal(t, "table", fake.objects["reports/runs/2024/wwarn.pfcrt_76.tsv"])
	assert.Equal(t, "text/tab-separated-values", fake.types["runs/2024/wwarn.ags.calcs"])
	assert.Equal(t, "s3://reports/runs/2024/a.tsv", s.Location("a.tsv"))
}

func TestPublishStopsOnError(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}, fail: "wwarn.ags.calcs"}
	err := Publish(context.Background(), NewS3WithClient(fake, "reports", ""), outputs(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://reports/wwarn.ags.calcs")
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
		ok                 bool
	}{
		{"s3://bucket/a/b/", "bucket", "a/b", true},
		{"s3://bucket", "bucket", "", true},
		{"s3:///x", "", "", false},
		{"./out", "", "", false},
	}
	for _, tc := range tests {
		b, p, ok := ParseS3URL(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.bucket, b, tc.in)
		assert.Equal(t, tc.prefix, p, tc.in)
	}
}

func TestOpenSelectsS3(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	s, err := Open(context.Background(), Options{OutputDir: "s3://bucket/prefix", S3Endpoint: "http://localhost:9000", S3PathStyle: true})
	require.NoError(t, err)
	assert.IsType(t, &S3{}, s)
	assert.Equal(t, "s3://bucket/prefix/f.tsv", s.Location("f.tsv"))

	s, err = Open(context.Background(), Options{OutputDir: ".", S3Bucket: "other"})
	require.NoError(t, err)
	assert.Equal(t, "s3://other/f.tsv", s.Location("f.tsv"))
}

func TestDirPutHonoursCancellation(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Put(ctx, "x", []byte("x")), context.Canceled)
}
