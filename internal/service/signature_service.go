package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HMACSignatureService signs raw webhook bodies the way the processor does
// for the Cko-Signature header: lowercase hex HMAC-SHA256.
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

func (s *HMACSignatureService) mac(signingKey, body string) []byte {
	m := hmac.New(sha256.New, []byte(signingKey))
	m.Write([]byte(body))
	return m.Sum(nil)
}

// Sign returns the header value the processor would send for body.
func (s *HMACSignatureService) Sign(signingKey string, body string) string {
	return hex.EncodeToString(s.mac(signingKey, body))
}

// Verify decodes the header and compares raw MAC bytes in constant time.
// Surrounding whitespace and hex case are ignored; anything that is not
// a 32-byte hex digest fails.
func (s *HMACSignatureService) Verify(signingKey string, body string, header string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(s.mac(signingKey, body), got)
}
