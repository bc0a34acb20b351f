package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// webAppLabel is the fixed domain-separation key used to derive the
// signing key from the bot token.
const webAppLabel = "WebAppData"

var (
	ErrMissingHash      = errors.New("init data has no hash")
	ErrSignatureInvalid = errors.New("init data signature mismatch")
	ErrStale            = errors.New("init data is too old")
	ErrNoSecret         = errors.New("no bot token configured")
)

// DeriveKey computes HMAC-SHA256(key="WebAppData", message=botToken).
func DeriveKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppLabel))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Sign computes the tag for a data check string under a derived key.
func Sign(signingKey []byte, dataCheck string) []byte {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(dataCheck))
	return mac.Sum(nil)
}

// SignHex is Sign encoded the way clients send it.
func SignHex(signingKey []byte, dataCheck string) string {
	return hex.EncodeToString(Sign(signingKey, dataCheck))
}

// Result is the outcome of verifying one init data string. UserID is
// extracted even when Valid is false; only Valid may authorize anything.
type Result struct {
	Valid  bool
	UserID string
	Reason error
	Data   *InitData
}

type Verifier struct {
	signingKey []byte
	maxAge     time.Duration
	now        func() time.Time
}

// NewVerifier derives the signing key once. A maxAge of zero disables the
// freshness check.
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	v := &Verifier{maxAge: maxAge, now: time.Now}
	if botToken != "" {
		v.signingKey = DeriveKey(botToken)
	}
	return v
}

// WithClock replaces the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Verify(raw string) Result {
	data, err := Parse(raw)
	if err != nil {
		return Result{UserID: GuestID, Reason: err}
	}

	res := Result{UserID: ExtractUserID(data), Data: data}
	if err := v.check(data); err != nil {
		res.Reason = err
		return res
	}

	res.Valid = true
	return res
}

func (v *Verifier) check(data *InitData) error {
	if len(v.signingKey) == 0 {
		return ErrNoSecret
	}
	if data.Hash == "" {
		return ErrMissingHash
	}
	if err := CheckSignature(v.signingKey, data.DataCheckString(), data.Hash); err != nil {
		return err
	}

	if v.maxAge > 0 {
		authDate, ok := data.AuthDate()
		if !ok {
			return fmt.Errorf("%w: auth_date missing", ErrStale)
		}
		if age := v.now().Sub(authDate); age > v.maxAge {
			return fmt.Errorf("%w: age %s", ErrStale, age.Truncate(time.Second))
		}
	}

	return nil
}

// CheckSignature compares the full decoded tag in constant time.
func CheckSignature(signingKey []byte, dataCheck, hexTag string) error {
	claimed, err := hex.DecodeString(hexTag)
	if err != nil || len(claimed) != sha256.Size {
		return ErrSignatureInvalid
	}
	if !hmac.Equal(Sign(signingKey, dataCheck), claimed) {
		return ErrSignatureInvalid
	}
	return nil
}
