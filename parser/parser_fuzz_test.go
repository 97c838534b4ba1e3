package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfscrub/internal/pdftest"
	"github.com/wudi/pdfscrub/recovery"
)

func FuzzDocumentParser(f *testing.F) {
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n..."))
	f.Add(pdftest.New().Object(1, "<< /Type /Catalog >>").Trailer("/Root 1 0 R").Bytes())

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, rec := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy()} {
			p := NewDocumentParser(Config{Recovery: rec})
			_, _ = p.Parse(context.Background(), data)
		}
	})
}
