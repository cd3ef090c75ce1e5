package cdf

import (
	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/logging"
)

type options struct {
	log     zerolog.Logger
	version Version
	mmap    bool
}

func defaultOptions() options {
	return options{
		log:     logging.WithComponent("cdf"),
		version: Version1,
		mmap:    true,
	}
}

// Option configures how a file is opened or written.
type Option func(*options)

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithVersion sets the minimum format version written on flush. Version 1
// files are upgraded to version 2 automatically when an offset does not fit
// in 31 bits.
func WithVersion(v Version) Option {
	return func(o *options) {
		if v == Version1 || v == Version2 {
			o.version = v
		}
	}
}

// WithoutMmap reads files into memory instead of mapping them.
func WithoutMmap() Option {
	return func(o *options) { o.mmap = false }
}
