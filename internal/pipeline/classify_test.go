package pipeline

import (
	"strings"
	"testing"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

func TestClassify(t *testing.T) {
	mintRef := "/content/" + strings.Repeat("ab", 32) + "i0"

	cases := []struct {
		name    string
		preview string
		want    models.InscriptionKind
	}{
		{"deploy", `{"p":"brc-420","op":"deploy","id":"abc","max":"10"}`, models.KindBrc420Deploy},
		{"mint reference truncated", mintRef[:PreviewBytes], models.KindBrc420Mint},
		{"mint reference short", "/content/abci0", models.KindBrc420Mint},
		{"bitmap", "792000.bitmap", models.KindBitmap},
		{"bitmap zero", "0.bitmap", models.KindBitmap},
		{"parcel", "7.100.bitmap", models.KindParcel},
		{"bitmap leading zero is text", "0792.bitmap", models.KindText},
		{"json object", `{"hello":"world"}`, models.KindJson},
		{"json array", `[1,2,3]`, models.KindJson},
		{"plain text", "hello inscriptions", models.KindText},
		{"empty", "", models.KindUnknown},
		{"whitespace only", "  \n\t ", models.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify([]byte(tc.preview)); got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.preview, got, tc.want)
			}
		})
	}
}

func TestClassify_Binary(t *testing.T) {
	cases := []struct {
		name    string
		preview []byte
	}{
		{"png magic", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}},
		{"jpeg magic", []byte{0xff, 0xd8, 0xff, 0xe0}},
		{"gif magic", []byte("GIF89a......")},
		{"nul byte", []byte("text with \x00 inside")},
		{"invalid utf8", []byte{'h', 'i', 0xff, 0xfe, 'x'}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.preview); got != models.KindBinary {
				t.Errorf("Classify(%v) = %v, want KindBinary", tc.preview, got)
			}
		})
	}
}

// A multi-byte rune cut in half by the preview boundary is not binary.
func TestClassify_TruncatedRuneNotBinary(t *testing.T) {
	s := strings.Repeat("x", PreviewBytes-1) + "é" // 2-byte rune straddles the cut
	preview := []byte(s)[:PreviewBytes]
	if got := Classify(preview); got == models.KindBinary {
		t.Errorf("truncated rune misclassified as binary")
	}
}

func TestIsMintReference(t *testing.T) {
	valid := "/content/" + strings.Repeat("ab", 32) + "i0"

	cases := []struct {
		content string
		wantSrc string
		ok      bool
	}{
		{valid, strings.Repeat("ab", 32) + "i0", true},
		{valid + "\n", strings.Repeat("ab", 32) + "i0", true},
		{"/content/tooshorti0", "", false},
		{"/content/" + strings.Repeat("ab", 32), "", false},
		{"content/" + strings.Repeat("ab", 32) + "i0", "", false},
		{valid + "/extra", "", false},
	}
	for _, tc := range cases {
		src, ok := IsMintReference(tc.content)
		if ok != tc.ok || src != tc.wantSrc {
			t.Errorf("IsMintReference(%q) = (%q, %v), want (%q, %v)",
				tc.content, src, ok, tc.wantSrc, tc.ok)
		}
	}
}

func TestContentTypePriority(t *testing.T) {
	cases := []struct {
		ct   string
		want int
		ok   bool
	}{
		{"application/json", 1, true},
		{"text/plain", 2, true},
		{"text/plain;charset=utf-8", 2, true},
		{"Text/Plain; charset=UTF-8", 2, true},
		{"text/json", 3, true},
		{"image/png", 0, false},
		{"text/html", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ContentTypePriority(tc.ct)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ContentTypePriority(%q) = (%d, %v), want (%d, %v)",
				tc.ct, got, ok, tc.want, tc.ok)
		}
	}
}
