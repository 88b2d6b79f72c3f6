package codec

import (
	"fmt"
	"strings"

	"imgpress-go/internal/targetsize"
)

// Registry holds the encoders keyed by format.
type Registry struct {
	encoders map[targetsize.Format]Encoder
}

// NewRegistry creates a registry with the JPEG, WebP and PNG encoders.
func NewRegistry(extra ...Encoder) *Registry {
	r := &Registry{
		encoders: make(map[targetsize.Format]Encoder),
	}

	all := append([]Encoder{
		&JPEGEncoder{},
		&WebPEncoder{},
		&PNGEncoder{},
	}, extra...)

	for _, enc := range all {
		r.encoders[enc.Format()] = enc
	}
	return r
}

// Get returns the encoder for format, or nil if none is registered.
func (r *Registry) Get(format targetsize.Format) Encoder {
	return r.encoders[targetsize.Format(strings.ToLower(string(format)))]
}

// Available returns the registered formats in priority order.
func (r *Registry) Available() []targetsize.Format {
	var result []targetsize.Format
	for _, f := range []targetsize.Format{targetsize.FormatJPEG, targetsize.FormatWebP, targetsize.FormatPNG} {
		if _, ok := r.encoders[f]; ok {
			result = append(result, f)
		}
	}
	return result
}

// String returns a summary of available encoders.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no encoders available"
	}
	names := make([]string, len(avail))
	for i, f := range avail {
		names[i] = string(f)
	}
	return fmt.Sprintf("encoders: %s", strings.Join(names, ", "))
}
