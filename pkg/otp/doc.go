/*
Package otp generates one-time passwords for entries that store an OTP secret.

# How it works:

HOTP codes are computed per RFC 4226: HMAC the big endian counter with the shared key, pick four bytes at the offset
named by the low nibble of the last MAC byte, clear the top bit and reduce modulo 10^digits.
TOTP codes per RFC 6238 use the same computation with the counter floor((time - timeBase) / timeSlice).

A Generator is configured from a Config, from an option map with Setup (the format used by entry attributes), or from
an otpauth:// URL with ParseURL.

# General guidelines:
  - SHA-1 is the default algorithm since that's what nearly every authenticator app expects.
  - Steam Guard codes are recognized but not generated.
  - Setup is all or nothing. A malformed option leaves the previous configuration in place.
*/
package otp
