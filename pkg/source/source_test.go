package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/membudget"
)

type fakeS3 struct {
	objects map[string][]byte
	sizes   map[string]int64 // reported ContentLength overrides
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	size := int64(len(data))
	if n, ok := f.sizes[key]; ok {
		size = n
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(size),
	}, nil
}

// sampleFile returns the path and bytes of a small file with one variable.
func sampleFile(t *testing.T) (string, []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.nc")
	f, err := cdf.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.CreateDimension("n", 2); err != nil {
		t.Fatalf("CreateDimension failed: %v", err)
	}
	v, err := f.CreateVariable("v", cdf.Int, "n")
	if err != nil {
		t.Fatalf("CreateVariable failed: %v", err)
	}
	if err := v.Put([]int32{4, 5}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return path, data
}

func checkFile(t *testing.T, f *cdf.File) {
	t.Helper()
	defer f.Close()
	v, err := f.Variable("v")
	if err != nil {
		t.Fatalf("Variable failed: %v", err)
	}
	got, err := v.Ints()
	if err != nil || len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("v = %v, %v; want [4 5]", got, err)
	}
}

func TestClassifyAndParse(t *testing.T) {
	tests := []struct {
		uri    string
		kind   Kind
		bucket string
		key    string
		err    bool
	}{
		{"-", KindStdin, "", "", true},
		{"mesh.exo", KindPath, "", "", true},
		{"s3://b/dir/mesh.exo", KindS3, "b", "dir/mesh.exo", false},
		{"s3://b", KindS3, "", "", true},
		{"s3:///key", KindS3, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := Classify(tt.uri); got != tt.kind {
				t.Errorf("Classify = %d, want %d", got, tt.kind)
			}
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.err {
				if !errors.Is(err, ErrURI) {
					t.Errorf("ParseS3URI error = %v, want ErrURI", err)
				}
				return
			}
			if err != nil || bucket != tt.bucket || key != tt.key {
				t.Errorf("ParseS3URI = %q, %q, %v", bucket, key, err)
			}
		})
	}
}

func TestOpenSources(t *testing.T) {
	path, data := sampleFile(t)

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatal(err)
	}
	enc.Write(data)
	enc.Close()

	store := &fakeS3{objects: map[string][]byte{
		"b/plain.nc": data,
		"b/zst.nc":   compressed.Bytes(),
	}}
	opts := Options{S3: store, Stdin: bytes.NewReader(data)}
	ctx := context.Background()

	for _, uri := range []string{path, "-", "s3://b/plain.nc", "s3://b/zst.nc"} {
		t.Run(uri, func(t *testing.T) {
			if uri == "-" {
				opts.Stdin = bytes.NewReader(data)
			}
			f, err := Open(ctx, uri, opts)
			if err != nil {
				t.Fatalf("Open(%s) failed: %v", uri, err)
			}
			checkFile(t, f)
		})
	}
	if store.calls != 2 {
		t.Errorf("GetObject calls = %d, want 2", store.calls)
	}
}

func TestOpenS3Limits(t *testing.T) {
	_, data := sampleFile(t)
	store := &fakeS3{
		objects: map[string][]byte{"b/k": data, "b/lying": data},
		sizes:   map[string]int64{"b/lying": 1},
	}
	ctx := context.Background()

	if _, err := Open(ctx, "s3://b/k", Options{S3: store, MaxBytes: 10}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("declared size error = %v, want ErrTooLarge", err)
	}
	// A wrong ContentLength is caught while reading.
	if _, err := Open(ctx, "s3://b/lying", Options{S3: store, MaxBytes: 10}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("streamed size error = %v, want ErrTooLarge", err)
	}
	if _, err := Open(ctx, "s3://b/missing", Options{S3: store}); err == nil {
		t.Error("missing object opened")
	}
}

func TestOpenAll(t *testing.T) {
	path, data := sampleFile(t)
	store := &fakeS3{objects: map[string][]byte{"b/k": data}}

	files, err := OpenAll(context.Background(), []string{path, "s3://b/k"}, Options{S3: store}, 2)
	if err != nil {
		t.Fatalf("OpenAll failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("OpenAll returned %d files", len(files))
	}
	for _, f := range files {
		checkFile(t, f)
	}

	if _, err := OpenAll(context.Background(), []string{path, filepath.Join(t.TempDir(), "none.nc")}, Options{S3: store}, 2); err == nil {
		t.Error("OpenAll with a missing path succeeded")
	}
}

func TestOpenBudget(t *testing.T) {
	path, data := sampleFile(t)
	store := &fakeS3{objects: map[string][]byte{"b/k": data, "b/bad": []byte("not a cdf file")}}
	budget := membudget.New(uint64(len(data))+10, membudget.SourceConfig)
	opts := Options{S3: store, Budget: budget}
	ctx := context.Background()

	f, err := Open(ctx, "s3://b/k", opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	checkFile(t, f)
	if budget.InUse() != uint64(len(data)) {
		t.Errorf("InUse = %d, want %d", budget.InUse(), len(data))
	}

	opts.Stdin = bytes.NewReader(data)
	if _, err := Open(ctx, "-", opts); !errors.Is(err, membudget.ErrExhausted) {
		t.Errorf("second staged input error = %v, want ErrExhausted", err)
	}
	// Mapped local files are not charged.
	f, err = Open(ctx, path, opts)
	if err != nil {
		t.Fatalf("Open local failed: %v", err)
	}
	checkFile(t, f)

	budget.Release(budget.InUse())
	if _, err := Open(ctx, "s3://b/bad", opts); err == nil {
		t.Fatal("garbage object opened")
	}
	if budget.InUse() != 0 {
		t.Errorf("failed open kept %d bytes reserved", budget.InUse())
	}
}

func TestOpenStagedParsesInPlace(t *testing.T) {
	_, data := sampleFile(t)
	var plain int
	orig := openBytes
	openBytes = func(b []byte, opts ...cdf.Option) (*cdf.File, error) {
		plain++
		return orig(b, opts...)
	}
	t.Cleanup(func() { openBytes = orig })

	budget := membudget.New(1<<20, membudget.SourceConfig)
	f, err := openStaged(data, "stdin", Options{Budget: budget})
	if err != nil {
		t.Fatalf("openStaged failed: %v", err)
	}
	checkFile(t, f)
	if plain != 1 {
		t.Errorf("plain input parsed %d times in place, want 1", plain)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	packed := enc.EncodeAll(data, nil)
	enc.Close()
	f, err = openStaged(packed, "stdin", Options{Budget: budget})
	if err != nil {
		t.Fatalf("openStaged(zstd) failed: %v", err)
	}
	checkFile(t, f)
	if plain != 1 {
		t.Errorf("zstd input went through the in-place path")
	}
	if want := uint64(len(data) + len(packed)); budget.InUse() != want {
		t.Errorf("InUse = %d, want %d", budget.InUse(), want)
	}
}
