package otp

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Option keys understood by ParseConfig.
const (
	OptKey       = "key"
	OptSecret    = "secret"
	OptEncoding  = "encoding"
	OptType      = "type"
	OptDigits    = "digits"
	OptPeriod    = "period"
	OptAlgorithm = "algorithm"
	OptCounter   = "counter"
	OptTimeBase  = "timebase"
)

// Key encodings understood by the encoding option.
const (
	EncodingBase32 = "base32"
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
	EncodingUTF8   = "utf8"
)

// ParseConfig builds a Config from an option map, starting from DefaultConfig.
// Option names are case-insensitive and unknown options are ignored.
// Values are trimmed, except for a utf8 encoded key which is used exactly as given.
func ParseConfig(opts map[string]string) (Config, error) {
	cfg := DefaultConfig()
	raw := make(map[string]string, len(opts))
	norm := make(map[string]string, len(opts))
	for k, v := range opts {
		name := strings.ToLower(strings.TrimSpace(k))
		raw[name] = v
		norm[name] = strings.TrimSpace(v)
	}

	if v, ok := norm[OptType]; ok {
		typ, err := parseType(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Type = typ
	}
	if v, ok := norm[OptDigits]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinDigits || n > MaxDigits {
			return Config{}, fmt.Errorf("%w: invalid digits '%s'", ErrMalformedOptions, v)
		}
		cfg.Digits = n
	}
	if v, ok := norm[OptPeriod]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Config{}, fmt.Errorf("%w: invalid period '%s'", ErrMalformedOptions, v)
		}
		cfg.TimeSlice = time.Duration(n) * time.Second
	}
	if v, ok := norm[OptAlgorithm]; ok {
		alg, err := ParseAlgorithm(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Algorithm = alg
	}
	if v, ok := norm[OptCounter]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid counter '%s'", ErrMalformedOptions, v)
		}
		cfg.Counter = n
	}
	if v, ok := norm[OptTimeBase]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid time base '%s'", ErrMalformedOptions, v)
		}
		cfg.TimeBase = time.Unix(n, 0).UTC()
	}

	encoding := EncodingBase32
	if v, ok := norm[OptEncoding]; ok {
		encoding = strings.ToLower(v)
	}
	keys := norm
	if isTextEncoding(encoding) {
		keys = raw
	}
	secret, ok := keys[OptKey]
	if !ok {
		secret, ok = keys[OptSecret]
	}
	if !ok || len(secret) == 0 {
		return Config{}, fmt.Errorf("%w: missing key", ErrMalformedOptions)
	}
	key, err := DecodeKey(secret, encoding)
	if err != nil {
		return Config{}, err
	}
	cfg.Key = key

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseType(v string) (Type, error) {
	switch strings.ToLower(v) {
	case "hotp", "hmacotp":
		return TypeHOTP, nil
	case "totp":
		return TypeTOTP, nil
	case "steam":
		return TypeSteam, ErrUnsupportedGeneratorType
	default:
		return 0, fmt.Errorf("%w: unknown type '%s'", ErrMalformedOptions, v)
	}
}

func isTextEncoding(encoding string) bool {
	switch encoding {
	case EncodingUTF8, "ascii", "text":
		return true
	}
	return false
}

// ParseAlgorithm accepts names like "SHA1", "sha-256" and "HMAC-SHA-512".
func ParseAlgorithm(v string) (Algorithm, error) {
	name := strings.ToLower(v)
	name = strings.TrimPrefix(name, "hmac-")
	name = strings.ReplaceAll(name, "-", "")
	switch name {
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	default:
		return 0, fmt.Errorf("%w: unknown algorithm '%s'", ErrMalformedOptions, v)
	}
}

// DecodeKey decodes a secret with one of the supported encodings.
// Base32 input is accepted in any case, with or without padding and spaces.
func DecodeKey(secret, encoding string) ([]byte, error) {
	var (
		key []byte
		err error
	)
	switch encoding {
	case EncodingBase32, "":
		clean := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
		clean = strings.TrimRight(clean, "=")
		key, err = base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(clean)
	case EncodingHex:
		key, err = hex.DecodeString(strings.ReplaceAll(secret, " ", ""))
	case EncodingBase64:
		key, err = base64.StdEncoding.DecodeString(secret)
	default:
		if isTextEncoding(encoding) {
			key = []byte(secret)
			break
		}
		return nil, fmt.Errorf("%w: unknown key encoding '%s'", ErrMalformedOptions, encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s key: %v", ErrMalformedOptions, encoding, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrMalformedOptions)
	}
	return key, nil
}

// ParseURL parses an otpauth:// URL as exported by authenticator apps.
func ParseURL(raw string) (Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrMalformedOptions, err)
	}
	if !strings.EqualFold(u.Scheme, "otpauth") {
		return Config{}, fmt.Errorf("%w: unexpected scheme '%s'", ErrMalformedOptions, u.Scheme)
	}
	opts := map[string]string{OptType: u.Host}
	for k, v := range u.Query() {
		if len(v) > 0 {
			opts[k] = v[0]
		}
	}
	if strings.EqualFold(opts["encoder"], "steam") {
		return Config{}, ErrUnsupportedGeneratorType
	}
	return ParseConfig(opts)
}

// URL renders the Config as an otpauth:// URL with the given label.
func (c Config) URL(label, issuer string) string {
	q := url.Values{}
	q.Set(OptSecret, base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(c.Key))
	if issuer != "" {
		q.Set("issuer", issuer)
	}
	q.Set(OptAlgorithm, c.Algorithm.String())
	q.Set(OptDigits, strconv.Itoa(c.Digits))
	if c.Type == TypeHOTP {
		q.Set(OptCounter, strconv.FormatUint(c.Counter, 10))
	} else {
		q.Set(OptPeriod, strconv.Itoa(int(c.TimeSlice/time.Second)))
	}
	u := url.URL{
		Scheme:   "otpauth",
		Host:     c.Type.String(),
		Path:     "/" + label,
		RawQuery: q.Encode(),
	}
	return u.String()
}
