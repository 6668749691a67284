// Package normalize repairs encoding artifacts in ingested text.
//
// Corpus files come from mixed origins: UTF-8 exports, Windows hosts
// writing cp932 or windows-1252, and documents that were already
// mis-decoded once before landing in the corpus. Normalize turns any of
// these into canonical NFC UTF-8 with LF line endings. The repair is
// best-effort: unrecoverable byte runs become U+FFFD rather than
// failing the document, and only non-text binary input is rejected.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrBinaryInput is returned when input is not text at all.
var ErrBinaryInput = errors.New("input is not text")

// Placeholder replaces byte runs that no decoding could recover.
const Placeholder = "�"

// maxRepairPasses bounds the mojibake fixpoint loop.
const maxRepairPasses = 4

// Normalize decodes raw bytes into canonical UTF-8 text.
//
// It fails only for non-text input (ErrBinaryInput). Partially corrupt
// text is repaired as far as possible; what cannot be recovered is
// replaced with U+FFFD.
func Normalize(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	if looksBinary(raw) {
		return "", fmt.Errorf("%w: binary content", ErrBinaryInput)
	}

	raw = stripBOM(raw)

	var text string
	if utf8.Valid(raw) {
		text = string(raw)
	} else {
		text = decodeLegacy(raw)
	}

	return NormalizeText(text), nil
}

// NormalizeText canonicalizes already-decoded text. It is idempotent:
// NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	s = strings.ToValidUTF8(s, Placeholder)
	s = repairMojibake(s)
	s = norm.NFC.String(s)
	s = canonicalizeNewlines(s)
	return s
}

// looksBinary reports whether the input is non-text binary data.
// NUL bytes or a high ratio of control bytes in the sample are decisive.
func looksBinary(raw []byte) bool {
	sample := raw
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if bytes.IndexByte(sample, 0x00) >= 0 {
		return true
	}
	control := 0
	for _, b := range sample {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return control*10 > len(sample)*3
}

// stripBOM removes a UTF-8 byte order mark.
func stripBOM(raw []byte) []byte {
	return bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
}

// decodeLegacy decodes non-UTF-8 bytes using charset detection with
// cp932 and windows-1252 fall-backs. Undecodable runs become U+FFFD.
func decodeLegacy(raw []byte) string {
	enc := detectEncoding(raw)
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil || !utf8.Valid(decoded) {
		// Decoder could not make sense of the bytes; keep what is
		// recoverable and mark the rest.
		return strings.ToValidUTF8(string(raw), Placeholder)
	}
	return string(decoded)
}

// detectEncoding maps chardet's best guess to a decoder. The corpus
// historically came from cp932 hosts, so Japanese code pages are mapped
// explicitly; everything else falls back to windows-1252, which accepts
// any byte sequence.
func detectEncoding(raw []byte) encoding.Encoding {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(raw)
	if err != nil {
		return charmap.Windows1252
	}
	switch result.Charset {
	case "Shift_JIS":
		return japanese.ShiftJIS
	case "EUC-JP":
		return japanese.EUCJP
	case "ISO-2022-JP":
		return japanese.ISO2022JP
	case "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case "ISO-8859-1", "windows-1252":
		return charmap.Windows1252
	default:
		return charmap.Windows1252
	}
}

// repairMojibake reverses UTF-8 text that was mis-decoded as
// windows-1252 at some earlier point ("é" stored as "Ã©"). The repair
// runs to a fixpoint so doubly mangled text also recovers, bounded to
// keep pathological input from looping.
func repairMojibake(s string) string {
	for i := 0; i < maxRepairPasses; i++ {
		repaired, ok := undoWindows1252(s)
		if !ok || repaired == s {
			return s
		}
		s = repaired
	}
	return s
}

// mojibakeMarkers are lead runes of windows-1252 mis-decoded UTF-8
// multi-byte sequences. Text without them is left untouched.
const mojibakeMarkers = "ÃÂâ€šƒ„…†‡ˆ‰Š‹ŒŽ‘’“”•–—˜™›œžŸ"

// undoWindows1252 re-encodes the text as windows-1252 bytes and accepts
// the result only when those bytes form valid multi-byte UTF-8.
func undoWindows1252(s string) (string, bool) {
	if !strings.ContainsAny(s, mojibakeMarkers) {
		return s, false
	}
	encoded, _, err := transform.String(charmap.Windows1252.NewEncoder(), s)
	if err != nil {
		// Some rune has no windows-1252 byte, so the text cannot be a
		// mis-decoding of that code page.
		return s, false
	}
	if !utf8.ValidString(encoded) || !hasMultiByte(encoded) {
		return s, false
	}
	return encoded, true
}

func hasMultiByte(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return true
		}
	}
	return false
}

// canonicalizeNewlines converts CRLF and lone CR to LF and drops other
// C0 control characters except tab.
func canonicalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
