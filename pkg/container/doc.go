/*
Package container reads and writes the encrypted container around a database document.

# How it works:

A container starts with a signature and version, followed by a tag-length-value header describing the cipher, compression, KDF parameters and random seeds.
The header is followed by its SHA-256 hash and an HMAC-SHA-256 tag, which can only be verified with the correct credentials.

The body is a sequence of blocks, each carrying an HMAC-SHA-256 tag over its index, length and ciphertext, keyed per block from the master key.
Every block tag is verified before any ciphertext is decrypted, so a wrong key and a tampered file are indistinguishable and neither yields plain text.

Inside the decrypted (and optionally gzip decompressed) payload is the inner header, holding the inner stream parameters and attachment content, followed by the document.

# General guidelines:
  - Open and Seal derive keys with a deliberately slow KDF. Don't call them on latency sensitive paths.
  - Seal generates a new master seed, IV and KDF seed every time, so the same payload never produces the same container twice.
  - ErrIntegrity never carries details about which check failed.
*/
package container
