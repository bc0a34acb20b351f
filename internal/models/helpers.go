package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const invoicePayloadPrefix = "stars"

// maxInvoicePayload is Telegram's limit on invoice payload length.
const maxInvoicePayload = 128

func NewRequestID() string {
	return uuid.New().String()
}

// GenerateDrawSeed returns 256 bits of entropy, hex encoded.
func GenerateDrawSeed() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate draw seed: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}

// NewInvoicePayload builds "stars:<userId>:<uuid>". The payload later
// becomes the request id of the grant.
func NewInvoicePayload(userID string) string {
	return fmt.Sprintf("%s:%s:%s", invoicePayloadPrefix, userID, uuid.New().String())
}

// ParseInvoicePayload returns the user id embedded in a payload made by
// NewInvoicePayload.
func ParseInvoicePayload(payload string) (string, error) {
	if len(payload) > maxInvoicePayload {
		return "", fmt.Errorf("invoice payload too long")
	}

	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != invoicePayloadPrefix {
		return "", fmt.Errorf("unrecognized invoice payload")
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		return "", fmt.Errorf("invoice payload has no user id")
	}
	if _, err := uuid.Parse(parts[2]); err != nil {
		return "", fmt.Errorf("invoice payload token: %v", err)
	}

	return parts[1], nil
}
