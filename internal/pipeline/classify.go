package pipeline

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// PreviewBytes is how much content the classifier looks at. Classification
// is a deterministic function of exactly this prefix.
const PreviewBytes = 50

const deployPrefix = `{"p":"brc-420","op":"deploy"`

var (
	bitmapRe = regexp.MustCompile(`^(0|[1-9][0-9]*)\.bitmap$`)
	parcelRe = regexp.MustCompile(`^\d+\.\d+\.bitmap$`)
	mintRe   = regexp.MustCompile(`^/content/[0-9a-f]{64}i[0-9]+$`)
)

// image magic numbers that mark a preview as binary outright.
var imageMagics = [][]byte{
	{0x89, 'P', 'N', 'G'},
	{0xff, 0xd8, 0xff},
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("RIFF"),
	[]byte("BM"),
}

// Classify maps a content preview (first 50 bytes) to an InscriptionKind.
//
// A full BRC-420 mint reference ("/content/" + 64-hex + "i<n>") does not fit
// in the preview, so the mint arm matches on the "/content/" prefix alone;
// the validator re-checks the complete reference against the full content.
// Likewise "<P>.<N>.bitmap" parcels surface here as KindParcel only when the
// whole pattern fits; otherwise the bitmap/parcel split happens at the
// full-content stage.
func Classify(preview []byte) models.InscriptionKind {
	if len(preview) > PreviewBytes {
		preview = preview[:PreviewBytes]
	}
	if len(preview) == 0 {
		return models.KindUnknown
	}
	if isBinary(preview) {
		return models.KindBinary
	}

	s := string(preview)
	if strings.HasPrefix(s, deployPrefix) {
		return models.KindBrc420Deploy
	}

	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "/content/") {
		return models.KindBrc420Mint
	}
	if strings.HasSuffix(trimmed, ".bitmap") {
		if parcelRe.MatchString(trimmed) {
			return models.KindParcel
		}
		if bitmapRe.MatchString(trimmed) {
			return models.KindBitmap
		}
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return models.KindJson
	}
	if trimmed == "" {
		return models.KindUnknown
	}
	return models.KindText
}

// IsMintReference reports whether the complete content is a well-formed
// BRC-420 mint reference, returning the referenced source inscription id.
func IsMintReference(content string) (sourceID string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if !mintRe.MatchString(trimmed) {
		return "", false
	}
	return strings.TrimPrefix(trimmed, "/content/"), true
}

func isBinary(preview []byte) bool {
	for _, magic := range imageMagics {
		if bytes.HasPrefix(preview, magic) {
			return true
		}
	}
	if bytes.IndexByte(preview, 0) >= 0 {
		return true
	}
	// The 50-byte cut can split a multi-byte rune, so tolerate an
	// incomplete rune at the tail but nothing before it.
	for i := 0; i < len(preview); {
		r, size := utf8.DecodeRune(preview[i:])
		if r == utf8.RuneError && size == 1 {
			if len(preview)-i < utf8.UTFMax && !utf8.FullRune(preview[i:]) {
				break
			}
			return true
		}
		i += size
	}
	return false
}

// relevantContentTypes maps an inscription content type to its fetch
// priority; anything absent is filtered out before preview fetch.
var relevantContentTypes = map[string]int{
	"application/json": 1,
	"text/plain":       2,
	"text/json":        3,
}

// ContentTypePriority returns (priority, true) for content types the indexer
// cares about. Parameters like "; charset=utf-8" are ignored.
func ContentTypePriority(contentType string) (int, bool) {
	base := strings.TrimSpace(strings.ToLower(contentType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	p, ok := relevantContentTypes[base]
	return p, ok
}
