package totp

import (
	"encoding/base64"
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// QRCodeDataURI renders uri as a PNG QR code and returns it as a data URI
// suitable for an <img src>.
func QRCodeDataURI(uri string, size int) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", ErrQRCodeFailed
	}
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return "", errors.Join(ErrQRCodeFailed, err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
