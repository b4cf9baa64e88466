package core

import (
	"bytes"
	"io"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding labels reported in DecodedText.
const (
	EncodingUTF8        = "UTF-8"
	EncodingWindows1252 = "Windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// mojibakeRepairs maps UTF-8 text that was decoded as Windows-1252 back to
// the intended characters. The keys double as corruption markers.
var mojibakeRepairs = []string{
	"Ã¤", "ä",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"ÃŸ", "ß",
	"Ã\u009f", "ß",
	"Ã„", "Ä",
	"Ã–", "Ö",
	"Ãœ", "Ü",
	"Ã©", "é",
	"â€ž", "„",
	"â€œ", "“",
	"â€“", "–",
	"â€™", "’",
}

// mojibakeMarkers are counted when scoring a decoding. "Ã" and "Â" lead
// every UTF-8 sequence for Latin-1 letters read as Windows-1252, and "â€"
// leads the punctuation sequences. None occur in German addresses.
var mojibakeMarkers = []string{"Ã", "Â", "â€"}

var mojibakeReplacer = strings.NewReplacer(mojibakeRepairs...)

// DecodedText is the output of NormalizeEncoding.
type DecodedText struct {
	Text      string
	Delimiter rune
	// Encoding is the decoding that was chosen.
	Encoding string
	// DetectedCharset is chardet's guess, kept for diagnostics only.
	DetectedCharset string
	// Score is the corruption score of the chosen decoding before repair.
	Score int
}

// NormalizeEncoding decodes raw file bytes as UTF-8 and as Windows-1252,
// keeps the decoding with the lower corruption score (UTF-8 on ties),
// repairs known mojibake sequences and detects the delimiter.
func NormalizeEncoding(data []byte) DecodedText {
	data = bytes.TrimPrefix(data, utf8BOM)

	utf8Text := decodeWith(data, unicode.UTF8.NewDecoder())
	legacyText := decodeWith(data, charmap.Windows1252.NewDecoder())

	out := DecodedText{
		Text:     utf8Text,
		Encoding: EncodingUTF8,
		Score:    CorruptionScore(utf8Text),
	}
	if legacyScore := CorruptionScore(legacyText); legacyScore < out.Score {
		out.Text = legacyText
		out.Encoding = EncodingWindows1252
		out.Score = legacyScore
	}

	out.Text = RepairMojibake(out.Text)
	out.Delimiter = DetectDelimiter(out.Text)
	out.DetectedCharset = detectCharset(data)
	return out
}

// decodeWith runs data through dec. Invalid input becomes U+FFFD.
func decodeWith(data []byte, dec *encoding.Decoder) string {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), dec))
	if err != nil {
		return string(bytes.ToValidUTF8(data, []byte("\uFFFD")))
	}
	return string(out)
}

// CorruptionScore counts replacement characters and mojibake markers.
func CorruptionScore(s string) int {
	score := strings.Count(s, "\uFFFD")
	for _, m := range mojibakeMarkers {
		score += strings.Count(s, m)
	}
	return score
}

// RepairMojibake rewrites known mis-encoded sequences to the characters
// they were meant to be.
func RepairMojibake(s string) string {
	if !strings.Contains(s, "Ã") && !strings.Contains(s, "â€") {
		return s
	}
	return mojibakeReplacer.Replace(s)
}

// DetectDelimiter inspects the first line: tab wins, then semicolon,
// otherwise comma.
func DetectDelimiter(text string) rune {
	first := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		first = text[:i]
	}
	switch {
	case strings.ContainsRune(first, '\t'):
		return '\t'
	case strings.ContainsRune(first, ';'):
		return ';'
	default:
		return ','
	}
}

func detectCharset(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return ""
	}
	return result.Charset
}
