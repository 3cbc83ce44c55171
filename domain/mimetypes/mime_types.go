package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"

	ApplicationPDF MIME = "application/pdf"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWebP MIME = "image/webp"

	AudioOgg  MIME = "audio/ogg"
	AudioMPEG MIME = "audio/mpeg"

	VideoMP4  MIME = "video/mp4"
	VideoWebM MIME = "video/webm"
)

// allowedAttachments lists what a message may carry as an attachment.
var allowedAttachments = map[MIME]struct{}{
	TextPlain:      {},
	ApplicationPDF: {},
	ImagePNG:       {},
	ImageJPEG:      {},
	ImageGIF:       {},
	ImageWebP:      {},
	AudioOgg:       {},
	AudioMPEG:      {},
	VideoMP4:       {},
	VideoWebM:      {},
}

// Parse normalizes a declared media type, dropping parameters like charset.
// A bare token parses cleanly in Go, so the type/subtype shape is checked
// on top of it.
func Parse(declared string) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return Unknown, false
	}
	typ, sub, found := strings.Cut(mt, "/")
	if !found || typ == "" || sub == "" {
		return Unknown, false
	}
	return MIME(mt), true
}

// AttachmentAllowed reports whether a declared media type may be attached.
func AttachmentAllowed(declared string) bool {
	mt, ok := Parse(declared)
	if !ok {
		return false
	}
	_, ok = allowedAttachments[mt]
	return ok
}
