// Package envelope packages encoded images for transport: base64 data URLs,
// ZIP archives and PDF documents.
package envelope

import (
	"encoding/base64"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"imgpress-go/internal/targetsize"
)

// Entry is one encoded image to package.
type Entry struct {
	Name   string
	Format targetsize.Format
	Data   []byte
}

// DataURL returns data as a data:image/<format>;base64 URL.
func DataURL(format targetsize.Format, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", format.ContentType(), base64.StdEncoding.EncodeToString(data))
}

// ContentHash returns the xxHash64 of data as 16 hex chars.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// EntryName returns image_<n>.<ext> for the zero-based index i.
func EntryName(i int, format targetsize.Format) string {
	return fmt.Sprintf("image_%d.%s", i+1, format.Extension())
}
