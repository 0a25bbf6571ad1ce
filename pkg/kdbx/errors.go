package kdbx

import (
	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/container"
	"github.com/saylorsolutions/gokdbx/pkg/document"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
	"github.com/saylorsolutions/gokdbx/pkg/otp"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
)

// Error kinds from every stage of the pipeline, so callers only need to import this package to check them.
var (
	ErrInvalidKeyFactor          = compositekey.ErrInvalidKeyFactor
	ErrUnsupportedKDF            = kdf.ErrUnsupportedKDF
	ErrInvalidKDFParameters      = kdf.ErrInvalidParameters
	ErrUnsupportedCipher         = container.ErrUnsupportedCipher
	ErrIntegrityFailure          = container.ErrIntegrity
	ErrCorruptPayload            = container.ErrCorruptPayload
	ErrMalformedHeader           = container.ErrMalformedHeader
	ErrUnsupportedVersion        = container.ErrUnsupportedVersion
	ErrUnsupportedStream         = protect.ErrUnsupportedStream
	ErrMalformedDocument         = document.ErrMalformedDocument
	ErrDuplicateUUID             = document.ErrDuplicateUUID
	ErrUnresolvedBinaryReference = document.ErrUnresolvedBinaryReference
	ErrUnsupportedGeneratorType  = otp.ErrUnsupportedGeneratorType
	ErrMalformedOTPOptions       = otp.ErrMalformedOptions
)
