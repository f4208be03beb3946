package ocr

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Preprocessor brings uploaded images into the form the engines expect:
// EXIF orientation applied, re-encoded as PNG. It does no enhancement.
type Preprocessor struct {
	log *logrus.Entry
}

// NewPreprocessor creates a new image preprocessor.
func NewPreprocessor(log *logrus.Entry) *Preprocessor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Preprocessor{log: log}
}

// Normalize returns the page bytes and their format. When the image cannot
// be decoded the original bytes are returned unchanged with fallbackFormat.
func (p *Preprocessor) Normalize(data []byte, fallbackFormat string) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		p.log.WithError(err).Warn("image decode failed, using original bytes")
		return data, fallbackFormat
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		p.log.WithError(err).Warn("png encode failed, using original bytes")
		return data, fallbackFormat
	}

	p.log.WithFields(logrus.Fields{
		"in_bytes":  len(data),
		"out_bytes": buf.Len(),
		"width":     img.Bounds().Dx(),
		"height":    img.Bounds().Dy(),
	}).Debug("image normalised")
	return buf.Bytes(), "png"
}
