package sender

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind decides which file input an attachment is uploaded through.
type Kind int

const (
	KindDocument Kind = iota
	KindMedia
)

func (k Kind) String() string {
	if k == KindMedia {
		return "media"
	}
	return "document"
}

var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".3gp": true,
}

// MediaKind classifies path by extension. Files without an extension are
// sniffed; image and video content goes through the media input.
func MediaKind(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if mediaExtensions[ext] {
			return KindMedia
		}
		return KindDocument
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return KindDocument
	}
	for m := mtype; m != nil; m = m.Parent() {
		if s := m.String(); strings.HasPrefix(s, "image/") || strings.HasPrefix(s, "video/") {
			return KindMedia
		}
	}
	return KindDocument
}
