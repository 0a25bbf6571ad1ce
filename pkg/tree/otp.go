package tree

import (
	"fmt"
	"strings"

	"github.com/saylorsolutions/gokdbx/pkg/otp"
)

// OTP attribute keys.
const (
	KeyOTPURL         = "otp"
	KeyLegacyTOTPSeed = "TOTP Seed"
	KeyLegacyTOTPConf = "TOTP Settings"

	timeOTPPrefix = "TimeOtp-"
	hmacOTPPrefix = "HmacOtp-"
)

var secretSuffixes = []struct {
	suffix   string
	encoding string
}{
	{"Secret", otp.EncodingUTF8},
	{"Secret-Hex", otp.EncodingHex},
	{"Secret-Base32", otp.EncodingBase32},
	{"Secret-Base64", otp.EncodingBase64},
}

// OTP builds a generator from the entry's OTP attributes.
// An otpauth:// URL in the "otp" attribute is preferred, then the TimeOtp-* attributes, then the HmacOtp-* attributes,
// then the legacy "TOTP Seed" and "TOTP Settings" pair.
func (e *Entry) OTP() (*otp.Generator, error) {
	if raw := e.Get(KeyOTPURL); raw != "" {
		cfg, err := otp.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		return otp.NewGenerator(cfg)
	}
	if opts, ok := e.otpOptions(timeOTPPrefix); ok {
		opts[otp.OptType] = "totp"
		if v := e.Get(timeOTPPrefix + "Length"); v != "" {
			opts[otp.OptDigits] = v
		}
		if v := e.Get(timeOTPPrefix + "Period"); v != "" {
			opts[otp.OptPeriod] = v
		}
		if v := e.Get(timeOTPPrefix + "Algorithm"); v != "" {
			opts[otp.OptAlgorithm] = v
		}
		return newGenerator(opts)
	}
	if opts, ok := e.otpOptions(hmacOTPPrefix); ok {
		opts[otp.OptType] = "hotp"
		if v := e.Get(hmacOTPPrefix + "Counter"); v != "" {
			opts[otp.OptCounter] = v
		}
		return newGenerator(opts)
	}
	if seed := e.Get(KeyLegacyTOTPSeed); seed != "" {
		opts := map[string]string{otp.OptKey: seed, otp.OptType: "totp"}
		if conf := e.Get(KeyLegacyTOTPConf); conf != "" {
			period, digits, _ := strings.Cut(conf, ";")
			opts[otp.OptPeriod] = period
			if digits == "S" {
				opts[otp.OptType] = "steam"
			} else if digits != "" {
				opts[otp.OptDigits] = digits
			}
		}
		return newGenerator(opts)
	}
	return nil, fmt.Errorf("%w: '%s'", ErrNoOTP, e.Title())
}

func (e *Entry) otpOptions(prefix string) (map[string]string, bool) {
	for _, s := range secretSuffixes {
		if v := e.Get(prefix + s.suffix); v != "" {
			return map[string]string{otp.OptKey: v, otp.OptEncoding: s.encoding}, true
		}
	}
	return nil, false
}

func newGenerator(opts map[string]string) (*otp.Generator, error) {
	cfg, err := otp.ParseConfig(opts)
	if err != nil {
		return nil, err
	}
	return otp.NewGenerator(cfg)
}
