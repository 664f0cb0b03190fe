package utils

import (
	"bytes"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"image/png"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidQR = errors.New("qr code signature mismatch")

var qrEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// QRSigner turns a ticket code into a scanner-verifiable token
// "<code>.<mac>" where mac is a keyed BLAKE2b-128 over the code.
type QRSigner struct {
	Key []byte
}

func (s QRSigner) mac(code string) (string, error) {
	key := s.Key
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New(16, key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(code))
	return qrEncoding.EncodeToString(h.Sum(nil)), nil
}

// Sign returns the QR payload for code.
func (s QRSigner) Sign(code string) (string, error) {
	m, err := s.mac(code)
	if err != nil {
		return "", err
	}
	return code + "." + m, nil
}

// Verify checks token and returns the ticket code it carries.
func (s QRSigner) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", ErrInvalidQR
	}
	code, got := token[:i], token[i+1:]
	want, err := s.mac(code)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return "", ErrInvalidQR
	}
	return code, nil
}

// GenerateQRCode renders content as a PNG of size pixels.
func GenerateQRCode(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
