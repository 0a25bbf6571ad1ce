package kdbx

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
)

const fileMode os.FileMode = 0600

// OpenFile reads and decodes the database at path.
func OpenFile(ctx context.Context, path string, key *compositekey.Key) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open database file")
	}
	defer func() {
		_ = f.Close()
	}()
	db, err := Decode(ctx, bufio.NewReader(f), key)
	if err != nil {
		return nil, err
	}
	log().Debug().Str("path", path).Msg("Opened database file")
	return db, nil
}

// SaveFile encodes the database to path.
// The database is written to a temporary file in the same directory first, and only replaces path once it's complete.
func (db *Database) SaveFile(ctx context.Context, path string, key *compositekey.Key) (err error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "cannot create temporary file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = tmp.Chmod(fileMode); err != nil {
		return errors.Wrap(err, "cannot set file permissions")
	}
	bw := bufio.NewWriter(tmp)
	if err = db.Encode(ctx, bw, key); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return errors.Wrap(err, "cannot write database file")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "cannot sync database file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "cannot close database file")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "cannot replace %s", path)
	}
	log().Debug().Str("path", path).Msg("Saved database file")
	return nil
}
