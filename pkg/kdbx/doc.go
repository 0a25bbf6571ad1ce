/*
Package kdbx reads and writes KeePass KDBX 4 password databases.

# How it works:

Decode authenticates and decrypts the container with a composite key, then parses the document inside it into a
tree.Tree. Encode does the reverse, with a fresh master seed, IV, KDF seed and inner stream key every time, so two
encodings of the same database never share key material.

	key, err := compositekey.New(compositekey.Password([]byte("correct horse battery staple")))
	if err != nil {
		return err
	}
	db, err := kdbx.OpenFile(ctx, "vault.kdbx", key)
	if err != nil {
		return err
	}
	// ... use db.Tree ...
	return db.SaveFile(ctx, "vault.kdbx", key)

# General guidelines:
  - A wrong key and a tampered file both produce ErrIntegrityFailure. There's no way to tell them apart.
  - Key derivation is slow. Pass a context with a deadline if a caller may give up.
  - The library is silent by default. Use SetLogger to see stage timings. Key material and plain text are never logged.
*/
package kdbx
