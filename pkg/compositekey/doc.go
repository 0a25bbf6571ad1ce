/*
Package compositekey combines independent credential factors into the raw key used to open a database.

# How it works:

Each factor is hashed with SHA-256 as soon as it's provided, and only the digest is kept.
The raw composite key is the SHA-256 of the concatenated factor digests, always in the order password, keyfile, challenge-response.
The order in which factors are supplied to New doesn't matter.

Keyfiles may be XML (version 1.0 or 2.0), 32 raw bytes, 64 hex characters, or any other file, which is hashed as-is.
A challenge-response factor is asked to respond to the database master seed each time the raw key is computed, since the seed changes with every save.
*/
package compositekey
