// Package source opens CDF inputs named by a local path, "-" for standard
// input, or an s3://bucket/key URI.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/exocdf/internal/logctx"
	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/membudget"
)

// DefaultMaxBytes bounds remote objects when Options.MaxBytes is zero.
const DefaultMaxBytes = 4 << 30

var (
	// ErrURI indicates a malformed input URI.
	ErrURI = errors.New("invalid input URI")
	// ErrTooLarge indicates a remote object above Options.MaxBytes.
	ErrTooLarge = errors.New("object exceeds size limit")
)

// ObjectGetter is the subset of *s3.Client used to fetch objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures Open.
type Options struct {
	// S3 fetches s3:// inputs. When nil a client is built from the default
	// AWS configuration on first use.
	S3 ObjectGetter
	// Region overrides the AWS region of the default client.
	Region string
	// MaxBytes bounds the size of one in-memory input. Zero means
	// DefaultMaxBytes.
	MaxBytes int64
	// Budget, when set, bounds the combined size of in-memory inputs. Each
	// reservation is held for the life of the budget since the returned
	// file keeps the bytes.
	Budget *membudget.Budget
	// Stdin is read for "-". Nil means os.Stdin.
	Stdin io.Reader
	// CDF holds options passed to the container.
	CDF []cdf.Option
}

// Kind classifies an input name.
type Kind int

const (
	KindPath Kind = iota
	KindStdin
	KindS3
)

// Classify returns the kind of an input name.
func Classify(uri string) Kind {
	switch {
	case uri == "-":
		return KindStdin
	case strings.HasPrefix(uri, "s3://"):
		return KindS3
	}
	return KindPath
}

// ParseS3URI splits s3://bucket/key. Both parts are required.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q must start with s3://", ErrURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q is missing the bucket", ErrURI, uri)
	}
	if key == "" {
		return "", "", fmt.Errorf("%w: %q is missing the key", ErrURI, uri)
	}
	return bucket, key, nil
}

// NewS3Client builds a client from the default AWS configuration.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Open opens an input read-only.
func Open(ctx context.Context, uri string, opts Options) (*cdf.File, error) {
	log := logctx.FromContext(ctx)
	switch Classify(uri) {
	case KindStdin:
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := readLimited(in, sizeLimit(opts.MaxBytes), "stdin")
		if err != nil {
			return nil, err
		}
		return openStaged(data, "stdin", opts)

	case KindS3:
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		getter := opts.S3
		if getter == nil {
			c, err := NewS3Client(ctx, opts.Region)
			if err != nil {
				return nil, err
			}
			getter = c
		}
		data, err := fetch(ctx, getter, bucket, key, sizeLimit(opts.MaxBytes))
		if err != nil {
			return nil, err
		}
		return openStaged(data, uri, opts)
	}

	log.Debug().Str("path", uri).Msg("opening local input")
	return cdf.Open(uri, cdf.ModeRead, opts.CDF...)
}

func sizeLimit(maxBytes int64) int64 {
	if maxBytes <= 0 {
		return DefaultMaxBytes
	}
	return maxBytes
}

// readLimited reads r fully, refusing more than limit bytes.
func readLimited(r io.Reader, limit int64, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w: more than %d bytes", name, ErrTooLarge, limit)
	}
	return data, nil
}

// openBytes opens plain staged input in place.
var openBytes = cdf.OpenBytes

// openStaged decodes an in-memory input, charging it to the budget. Plain
// input is parsed in place; zstd input is decompressed into a new buffer.
// Only the staged bytes are charged.
func openStaged(data []byte, name string, opts Options) (*cdf.File, error) {
	n := uint64(len(data))
	if opts.Budget != nil {
		if err := opts.Budget.Reserve(n); err != nil {
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
	}
	var f *cdf.File
	var err error
	if cdf.IsZstd(data) {
		f, err = cdf.OpenReader(bytes.NewReader(data), opts.CDF...)
	} else {
		f, err = openBytes(data, opts.CDF...)
	}
	if err != nil {
		if opts.Budget != nil {
			opts.Budget.Release(n)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// fetch reads an object into memory, refusing objects above limit bytes.
func fetch(ctx context.Context, getter ObjectGetter, bucket, key string, limit int64) ([]byte, error) {
	log := logctx.FromContext(ctx).With().Str("bucket", bucket).Str("key", key).Logger()
	start := time.Now()

	resp, err := getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if n := aws.ToInt64(resp.ContentLength); n > limit {
		return nil, fmt.Errorf("s3://%s/%s: %w: %d > %d bytes", bucket, key, ErrTooLarge, n, limit)
	}
	data, err := readLimited(resp.Body, limit, "s3://"+bucket+"/"+key)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("bytes", len(data)).Dur("elapsed", time.Since(start)).Msg("fetched object")
	return data, nil
}

// OpenAll opens inputs with at most concurrency fetches in flight. On error
// every file opened so far is closed.
func OpenAll(ctx context.Context, uris []string, opts Options, concurrency int) ([]*cdf.File, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	if opts.S3 == nil {
		for _, uri := range uris {
			if Classify(uri) == KindS3 {
				c, err := NewS3Client(ctx, opts.Region)
				if err != nil {
					return nil, err
				}
				opts.S3 = c
				break
			}
		}
	}

	files := make([]*cdf.File, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, uri := range uris {
		g.Go(func() error {
			f, err := Open(gctx, uri, opts)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
		return nil, err
	}
	return files, nil
}
