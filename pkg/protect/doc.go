/*
Package protect provides the two layers of protection applied to sensitive field values inside an open database.

# Inner stream

Protected values inside the decrypted document are XORed with a keystream (Salsa20 or ChaCha20) keyed from the inner header.
The keystream is a single continuous sequence shared by every protected value in the document.
Once a keystream byte is used, the Stream progresses to the next one, and it never rewinds.

This means that values must be processed in exactly the order they appear in the document.
Processing them out of order will garble every value that comes after the first misplaced one.

# In-memory screening

A Value holds a protected string XORed with a random pad of the same length while the database is open.
This is NOT encryption, since the pad is stored right next to the screened data.
It's useful to keep plain text secrets out of casual memory inspection, like a core dump or a swap file scan.

# General guidelines:
  - Create one Stream per document traversal, and thread it through the traversal explicitly.
  - Never reuse an inner stream key for a different document, the encoder generates a new one for every write.
  - Call Value.String only when the plain text is actually needed.
*/
package protect
