package service

import (
	"encoding/base64"
	"strings"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	errs "github.com/avvvet/idcard-services/internal/errors"
	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes bounds a decoded photo or signature.
const MaxImageBytes = 5 << 20

// normalizeImage turns an upload or an inline payload into a
// data:<mime>;base64,<payload> string. An upload wins over inline data.
// It returns "" when neither is present.
func normalizeImage(field, inline string, upload *models.Upload) (string, error) {
	if upload != nil && len(upload.Data) > 0 {
		return encodeImage(field, upload.ContentType, upload.Data)
	}

	inline = strings.TrimSpace(inline)
	if inline == "" {
		return "", nil
	}

	if strings.HasPrefix(inline, "data:") {
		mime, payload, ok := splitDataURI(inline)
		if !ok {
			return "", errs.Validation(field, "must be a base64 data uri")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", errs.Validation(field, "contains invalid base64 data")
		}
		return encodeImage(field, mime, data)
	}

	data, err := base64.StdEncoding.DecodeString(inline)
	if err != nil {
		return "", errs.Validation(field, "must be an image upload or base64 encoded image")
	}
	return encodeImage(field, "", data)
}

func splitDataURI(s string) (mime, payload string, ok bool) {
	header, payload, found := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(header, ";base64"), payload, true
}

func encodeImage(field, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errs.Validation(field, "is empty")
	}
	if len(data) > MaxImageBytes {
		return "", errs.Validation(field, "must be at most 5MB")
	}

	mime := baseMime(contentType)
	if mime == "" || mime == "application/octet-stream" {
		mime = baseMime(mimetype.Detect(data).String())
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", errs.Validation(field, "must be an image")
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func baseMime(s string) string {
	s, _, _ = strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(s))
}
