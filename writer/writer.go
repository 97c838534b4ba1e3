package writer

import (
	"context"
	"fmt"
	"io"

	"github.com/wudi/pdfscrub/ir/raw"
)

const defaultVersion = "1.7"

type Config struct {
	// Version overrides the document's header version when set.
	Version string
}

// Writer serializes a raw document. Output depends only on the document
// contents, so writing a re-parsed output reproduces it byte for byte.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes each indirect object as it is written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// Write is a convenience wrapper around a writer without interceptors.
func Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error {
	return (&WriterBuilder{}).Build().Write(ctx, doc, w, cfg)
}

// ReferenceError reports a reference whose target is not in the document.
// Holder is zero when the reference sits in the trailer.
type ReferenceError struct {
	Holder raw.ObjectRef
	Target raw.ObjectRef
}

func (e *ReferenceError) Error() string {
	if e.Holder.IsZero() {
		return fmt.Sprintf("trailer references missing object %v", e.Target)
	}
	return fmt.Sprintf("object %v references missing object %v", e.Holder, e.Target)
}
