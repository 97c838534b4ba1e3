package security

import (
	"errors"

	"github.com/wudi/pdfscrub/ir/raw"
)

// ErrEncrypted is returned for documents that carry an Encrypt dictionary.
// Strings and streams of such documents cannot be rewritten without the
// document key.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// CheckTrailer returns ErrEncrypted if the trailer references an Encrypt
// dictionary.
func CheckTrailer(trailer *raw.DictObj) error {
	if trailer.Has("Encrypt") {
		return ErrEncrypted
	}
	return nil
}
