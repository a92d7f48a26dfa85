package server

import (
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// EncodeQR renders url as a PNG QR code, for opening the preview on a phone.
func EncodeQR(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, qrSize)
}

// WriteQR writes the QR code for url to path as PNG.
func WriteQR(url, path string) error {
	return qrcode.WriteFile(url, qrcode.Medium, qrSize, path)
}
