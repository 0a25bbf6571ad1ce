package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/container"
	"github.com/saylorsolutions/gokdbx/pkg/kdbx"
	"github.com/saylorsolutions/gokdbx/pkg/tree"
)

func cipherName(db *kdbx.Database) string {
	return container.CipherName(db.Settings.Cipher)
}

func generateKeyFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if err := compositekey.GenerateKeyFile(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func createDatabase(ctx context.Context, path string, key *compositekey.Key, opts ...kdbx.SettingsOpt) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	db, err := kdbx.New(name, opts...)
	if err != nil {
		return err
	}
	return db.SaveFile(ctx, path, key)
}

// importDatabase creates a database at path from an XML export.
func importDatabase(ctx context.Context, xmlPath, path string, key *compositekey.Key, opts ...kdbx.SettingsOpt) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	f, err := os.Open(xmlPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	db, err := kdbx.ImportXML(bufio.NewReader(f), opts...)
	if err != nil {
		return err
	}
	return db.SaveFile(ctx, path, key)
}

// exportXML writes an unencrypted XML export, refusing to replace an existing file.
func exportXML(db *kdbx.Database, out string) (err error) {
	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(out)
		}
	}()
	w := bufio.NewWriter(f)
	if err := db.ExportXML(w); err != nil {
		return err
	}
	return w.Flush()
}

func listTree(w io.Writer, db *kdbx.Database) error {
	return db.Tree.Walk(func(n tree.Node, depth int) error {
		indent := strings.Repeat("  ", depth)
		var err error
		switch n := n.(type) {
		case *tree.Group:
			_, err = fmt.Fprintf(w, "%s%s/\n", indent, n.Name)
		case *tree.Entry:
			line := indent + n.Title()
			if user := n.UserName(); user != "" {
				line += " (" + user + ")"
			}
			if n.Times().Expired() {
				line += " [expired]"
			}
			_, err = fmt.Fprintln(w, line)
		}
		return err
	})
}

func printOTP(w io.Writer, db *kdbx.Database, title string, now time.Time) error {
	entries := db.Tree.FindEntries(func(e *tree.Entry) bool {
		return e.Title() == title
	})
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entry titled '%s'", tree.ErrNotFound, title)
	}
	var printed int
	for _, e := range entries {
		gen, err := e.OTP()
		if errors.Is(err, tree.ErrNoOTP) {
			continue
		}
		if err != nil {
			return err
		}
		code, err := gen.Code(now)
		if err != nil {
			return err
		}
		if remaining := gen.Remaining(now); remaining > 0 {
			_, err = fmt.Fprintf(w, "%s (%ds left)\n", code, int(remaining.Round(time.Second)/time.Second))
		} else {
			_, err = fmt.Fprintln(w, code)
		}
		if err != nil {
			return err
		}
		printed++
	}
	if printed == 0 {
		return fmt.Errorf("%w: '%s'", tree.ErrNoOTP, title)
	}
	return nil
}

func rekey(ctx context.Context, db *kdbx.Database, out string, key *compositekey.Key, opts ...kdbx.SettingsOpt) error {
	settings, err := kdbx.DefaultSettings()
	if err != nil {
		return err
	}
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return err
		}
	}
	settings.PublicCustomData = db.Settings.PublicCustomData
	fresh := &kdbx.Database{Tree: db.Tree, Settings: settings}
	return fresh.SaveFile(ctx, out, key)
}
