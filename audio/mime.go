package audio

import (
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIMEType is assumed when no type is known.
const DefaultMIMEType = "audio/webm"

// CleanMIMEType strips parameters ("audio/webm;codecs=opus" -> "audio/webm"),
// treats video/webm as audio/webm and defaults to audio/webm.
func CleanMIMEType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	switch base {
	case "":
		return DefaultMIMEType
	case "video/webm":
		return "audio/webm"
	default:
		return base
	}
}

// DetectMIMEType sniffs data. It returns the cleaned type and whether the
// content looks like audio (or a container that commonly carries audio).
func DetectMIMEType(data []byte) (string, bool) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		t := m.String()
		if strings.HasPrefix(t, "audio/") || strings.HasPrefix(t, "video/") {
			return CleanMIMEType(t), true
		}
	}
	return CleanMIMEType(detected.String()), false
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// FileName builds a download name from a label and MIME type: runs of
// whitespace become "_" and the extension is mp3 for audio/mpeg, otherwise
// the MIME subtype, defaulting to webm.
func FileName(label, mimeType string) string {
	return whitespaceRun.ReplaceAllString(label, "_") + "." + Extension(mimeType)
}

// Extension returns the download file extension for mimeType.
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if base == "audio/mpeg" {
		return "mp3"
	}
	_, sub, ok := strings.Cut(base, "/")
	if !ok || sub == "" {
		return "webm"
	}
	return sub
}
