/*
Package kdf provides the key derivation functions used to turn a raw composite key into the keys protecting a database.

# How it works:

The KDF and its parameters are stored in the container header as a variant dictionary, identified by a UUID.
FromParams parses that dictionary into a KDF, which transforms the raw composite key into a 32 byte transformed key.
The transformed key is hashed with the header's master seed by Split to get the cipher key and the HMAC key.

Both AES-KDF and Argon2id are memory and/or CPU hard, so derivation is deliberately slow.
Use Derive to run a transform that may be abandoned by cancelling its context.

# General guidelines:
  - It's possible to customize the cost parameters directly. If you're not an expert, then stick with the defaults.
  - Short delay options are provided for tests and frequently derived keys. They make password cracking much cheaper.
  - Call Reseed before every save, so that a fresh seed or salt is written each time.
  - Argon2d is recognized but not supported, since golang.org/x/crypto only implements Argon2i and Argon2id.
*/
package kdf
