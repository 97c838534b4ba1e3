package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/pdfscrub/ir/raw"
)

func TestPreviewDecodesText(t *testing.T) {
	utf16 := []byte{0xfe, 0xff, 0x00, 'H', 0x00, 'i', 0x26, 0x3a}
	assert.Equal(t, `"Hi☺"`, Preview(raw.Str(utf16)))
	assert.Equal(t, `"café"`, Preview(raw.Str([]byte{'c', 'a', 'f', 0xe9})))
	assert.Equal(t, `"ok"`, Preview(raw.Str([]byte{0xef, 0xbb, 0xbf, 'o', 'k'})))
}

func TestPreviewKinds(t *testing.T) {
	assert.Equal(t, "/Name", Preview(raw.NameLiteral("Name")))
	assert.Equal(t, "12", Preview(raw.NumberInt(12)))
	assert.Equal(t, "0.5", Preview(raw.NumberFloat(0.5)))
	assert.Equal(t, "true", Preview(raw.Bool(true)))
	assert.Equal(t, "4 0 R", Preview(raw.Ref(4, 0)))
	assert.Equal(t, "<<0 keys>>", Preview(raw.Dict()))
	assert.Equal(t, "stream(3 bytes)", Preview(raw.NewStream(nil, []byte("abc"))))
	assert.Equal(t, "null", Preview(raw.NullObj{}))
}

func TestPreviewTruncates(t *testing.T) {
	long := raw.Str([]byte(strings.Repeat("x", 200)))
	got := Preview(long)
	assert.Equal(t, maxPreview+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
