package exodus

import (
	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/logging"
)

type options struct {
	log      zerolog.Logger
	wordSize int
	version  cdf.Version
	mmap     bool
}

func defaultOptions() options {
	return options{
		log:      logging.WithComponent("exodus"),
		wordSize: 8,
		version:  cdf.Version1,
		mmap:     true,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) cdfOptions() []cdf.Option {
	out := []cdf.Option{cdf.WithLogger(o.log), cdf.WithVersion(o.version)}
	if !o.mmap {
		out = append(out, cdf.WithoutMmap())
	}
	return out
}

func (o options) floatType() cdf.Type {
	if o.wordSize == 4 {
		return cdf.Float
	}
	return cdf.Double
}

// Option configures a Writer or Reader.
type Option func(*options)

// WithLogger sets the logger for the file and its container.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithWordSize stores floating point data as 4- or 8-byte values. Other
// sizes are ignored.
func WithWordSize(n int) Option {
	return func(o *options) {
		if n == 4 || n == 8 {
			o.wordSize = n
		}
	}
}

// WithVersion sets the minimum container version. Version2 marks the file
// as a large model.
func WithVersion(v cdf.Version) Option {
	return func(o *options) { o.version = v }
}

// WithoutMmap reads files into memory instead of mapping them.
func WithoutMmap() Option {
	return func(o *options) { o.mmap = false }
}
