/*
Package document reads and writes the XML document carried inside a database container.

# How it works:

The document is processed one token at a time with encoding/xml. Values marked Protected="True" are base64 encoded
and XORed with the inner stream, so every protected value must be processed in document order by both sides. The
decoder consumes keystream for protected values even inside elements it doesn't understand, so unknown extensions
can't throw the stream out of alignment.

Groups and entries are written in the order they're stored in the tree, so that interleaved children survive a round
trip. Attachments are referenced by their index in the binary list that's returned by Encode and passed to Decode.

# General guidelines:
  - The same protect.Stream must not be shared between documents.
  - A nil stream is allowed for documents without protected values.
  - Times are written as base64 seconds since 0001-01-01 UTC. ISO 8601 times are accepted when reading.
*/
package document
