package render

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRDataURI encodes content as a PNG QR code data URI, or "" if content
// cannot be encoded.
func QRDataURI(content string) string {
	if content == "" {
		return ""
	}
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
