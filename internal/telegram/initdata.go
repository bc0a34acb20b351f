package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	FieldHash      = "hash"
	FieldSignature = "signature"
	FieldAuthDate  = "auth_date"
	FieldUser      = "user"
)

var (
	ErrMissingPayload   = errors.New("init data is empty")
	ErrMalformedPayload = errors.New("init data is malformed")
)

type Pair struct {
	Key   string
	Value string
}

// InitData is a parsed launch payload. Values are percent-decoded exactly once.
type InitData struct {
	Pairs []Pair
	Hash  string

	index map[string]string
}

// Parse splits a raw init data string into decoded key/value pairs.
// Repeated keys are rejected since they make the signed message ambiguous.
func Parse(raw string) (*InitData, error) {
	if raw == "" {
		return nil, ErrMissingPayload
	}

	data := &InitData{index: make(map[string]string)}
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(segment, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedPayload, rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", ErrMalformedPayload, key, err)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty key", ErrMalformedPayload)
		}
		if _, dup := data.index[key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrMalformedPayload, key)
		}

		data.index[key] = value
		data.Pairs = append(data.Pairs, Pair{Key: key, Value: value})
		if key == FieldHash {
			data.Hash = value
		}
	}

	if len(data.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrMalformedPayload)
	}

	return data, nil
}

func (d *InitData) Get(key string) string {
	return d.index[key]
}

// AuthDate returns the auth_date field, if present and numeric.
func (d *InitData) AuthDate() (time.Time, bool) {
	v, ok := d.index[FieldAuthDate]
	if !ok {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// DataCheckString is the signed message: every field except hash and
// signature as key=value, sorted byte-wise by key, joined by '\n'.
func (d *InitData) DataCheckString() string {
	pairs := make([]Pair, 0, len(d.Pairs))
	for _, p := range d.Pairs {
		if p.Key == FieldHash || p.Key == FieldSignature {
			continue
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

	lines := make([]string, len(pairs))
	for i, p := range pairs {
		lines[i] = p.Key + "=" + p.Value
	}
	return strings.Join(lines, "\n")
}

// Canonicalize parses raw and returns its data check string.
func Canonicalize(raw string) (string, error) {
	data, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return data.DataCheckString(), nil
}
