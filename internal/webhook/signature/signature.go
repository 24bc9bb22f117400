// Package signature authenticates provider webhook bodies against the
// `t=<unix>,v1=<hex>` signature header scheme.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const schemeV1 = "v1"

var (
	ErrMalformedHeader  = errors.New("malformed_signature_header")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrStaleTimestamp   = errors.New("stale_signature_timestamp")
	ErrNoSecret         = errors.New("webhook_secret_missing")
)

// Header is a parsed signature header.
type Header struct {
	Timestamp  time.Time
	rawTime    string
	Signatures [][]byte
}

// Verify checks rawBody against header using secret. A tolerance <= 0
// disables the staleness check.
func Verify(rawBody []byte, header string, secret string, tolerance time.Duration, now time.Time) error {
	return VerifyAny(rawBody, header, []string{secret}, tolerance, now)
}

// VerifyAny succeeds when any candidate signature matches any secret.
// Multiple secrets cover endpoint secret rotation.
func VerifyAny(rawBody []byte, header string, secrets []string, tolerance time.Duration, now time.Time) error {
	parsed, err := ParseHeader(header)
	if err != nil {
		return err
	}

	matched := false
	usable := 0
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		usable++
		expected := computeSignature(parsed.rawTime, rawBody, secret)
		for _, candidate := range parsed.Signatures {
			if hmac.Equal(candidate, expected) {
				matched = true
			}
		}
	}
	if usable == 0 {
		return ErrNoSecret
	}
	if !matched {
		return ErrInvalidSignature
	}

	if tolerance > 0 && now.Sub(parsed.Timestamp) > tolerance {
		return ErrStaleTimestamp
	}
	return nil
}

// ParseHeader splits the header into its timestamp and v1 signatures.
// Unknown schemes and undecodable signature values are skipped.
func ParseHeader(header string) (*Header, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMalformedHeader
	}

	parsed := &Header{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			return nil, ErrMalformedHeader
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, ErrMalformedHeader
			}
			parsed.rawTime = value
			parsed.Timestamp = time.Unix(unix, 0).UTC()
		case schemeV1:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			parsed.Signatures = append(parsed.Signatures, sig)
		}
	}

	if parsed.rawTime == "" || len(parsed.Signatures) == 0 {
		return nil, ErrMalformedHeader
	}
	return parsed, nil
}

// Sign builds a header for rawBody as the provider would.
func Sign(rawBody []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,%s=%s", ts, schemeV1, hex.EncodeToString(computeSignature(ts, rawBody, secret)))
}

func computeSignature(timestamp string, rawBody []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(rawBody)
	return mac.Sum(nil)
}
