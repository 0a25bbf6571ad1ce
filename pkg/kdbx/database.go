package kdbx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/container"
	"github.com/saylorsolutions/gokdbx/pkg/document"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
	"github.com/saylorsolutions/gokdbx/pkg/tree"
)

// Database is a decoded database along with the settings used to encode it.
type Database struct {
	Tree     *tree.Tree
	Settings Settings
}

// New creates an empty database with DefaultSettings, modified by any given options.
func New(name string, opts ...SettingsOpt) (*Database, error) {
	settings, err := DefaultSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.apply(opts...); err != nil {
		return nil, err
	}
	return &Database{
		Tree:     tree.New(name),
		Settings: settings,
	}, nil
}

// Decode reads a database from r, authenticating it with the key.
func Decode(ctx context.Context, r io.Reader, key *compositekey.Key) (*Database, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrInvalidKeyFactor)
	}
	start := time.Now()
	payload, err := container.Open(ctx, r, key)
	if err != nil {
		return nil, err
	}
	defer wipe(payload.Document)
	log().Debug().
		Str("cipher", container.CipherName(payload.Header.CipherID)).
		Str("compression", payload.Header.Compression.String()).
		Int("document_size", len(payload.Document)).
		Int("binaries", len(payload.Inner.Binaries)).
		Dur("elapsed", time.Since(start)).
		Msg("Opened container")

	k, err := kdf.FromParams(payload.Header.KDFParams)
	if err != nil {
		return nil, err
	}
	stream, err := payload.Inner.NewStream()
	if err != nil {
		return nil, err
	}
	defer stream.Wipe()
	wipe(payload.Inner.StreamKey)

	binaries := make([]document.Binary, len(payload.Inner.Binaries))
	for i, b := range payload.Inner.Binaries {
		binaries[i] = document.Binary{Protected: b.Protected, Data: b.Data}
	}
	parseStart := time.Now()
	t, err := document.Decode(bytes.NewReader(payload.Document), stream, binaries)
	if err != nil {
		return nil, err
	}
	log().Debug().
		Int("nodes", t.Len()).
		Int("pool_items", t.Binaries().Len()).
		Dur("elapsed", time.Since(parseStart)).
		Msg("Decoded document")

	return &Database{
		Tree: t,
		Settings: Settings{
			Cipher:           payload.Header.CipherID,
			Compression:      payload.Header.Compression,
			KDF:              k,
			InnerStream:      payload.Inner.StreamID,
			PublicCustomData: payload.Header.PublicCustomData,
		},
	}, nil
}

// Encode writes the database to w, protected by the key.
// Every call uses a fresh master seed, IV, KDF seed and inner stream key.
func (db *Database) Encode(ctx context.Context, w io.Writer, key *compositekey.Key) error {
	if key == nil {
		return fmt.Errorf("%w: nil key", ErrInvalidKeyFactor)
	}
	if db.Tree == nil {
		return fmt.Errorf("%w: database has no tree", ErrMalformedDocument)
	}
	if db.Settings.KDF == nil {
		return fmt.Errorf("%w: no KDF configured", ErrInvalidKDFParameters)
	}
	keySize := db.Settings.InnerStream.KeySize()
	if keySize == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedStream, db.Settings.InnerStream)
	}
	streamKey, err := protect.GenKey(keySize)
	if err != nil {
		return err
	}
	defer wipe(streamKey)
	stream, err := protect.NewStream(db.Settings.InnerStream, streamKey)
	if err != nil {
		return err
	}
	defer stream.Wipe()

	start := time.Now()
	var doc bytes.Buffer
	binaries, err := document.Encode(&doc, db.Tree, stream)
	if err != nil {
		return err
	}
	defer wipe(doc.Bytes())
	log().Debug().
		Int("document_size", doc.Len()).
		Int("binaries", len(binaries)).
		Dur("elapsed", time.Since(start)).
		Msg("Encoded document")

	inner := &container.InnerHeader{
		StreamID:  db.Settings.InnerStream,
		StreamKey: streamKey,
		Binaries:  make([]container.Binary, len(binaries)),
	}
	for i, b := range binaries {
		inner.Binaries[i] = container.Binary{Protected: b.Protected, Data: b.Data}
	}
	payload := &container.Payload{
		Header: &container.Header{
			CipherID:         db.Settings.Cipher,
			Compression:      db.Settings.Compression,
			PublicCustomData: db.Settings.PublicCustomData,
		},
		Inner:    inner,
		Document: doc.Bytes(),
	}
	sealStart := time.Now()
	if err := container.Seal(ctx, w, payload, db.Settings.KDF, key); err != nil {
		return err
	}
	log().Debug().
		Str("cipher", container.CipherName(db.Settings.Cipher)).
		Str("compression", db.Settings.Compression.String()).
		Dur("elapsed", time.Since(sealStart)).
		Msg("Sealed container")
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ExportXML writes the tree as unencrypted XML in the layout KeePass uses for XML export.
// Protected values are written in the clear, marked ProtectInMemory="True". Settings aren't part of the export.
func (db *Database) ExportXML(w io.Writer) error {
	if db.Tree == nil {
		return fmt.Errorf("%w: database has no tree", ErrMalformedDocument)
	}
	start := time.Now()
	if err := document.EncodePlain(w, db.Tree); err != nil {
		return err
	}
	log().Debug().
		Int("nodes", db.Tree.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Exported XML")
	return nil
}

// ImportXML reads unencrypted XML, as written by ExportXML or a KeePass XML export, into a new database with
// DefaultSettings modified by any given options.
func ImportXML(r io.Reader, opts ...SettingsOpt) (*Database, error) {
	settings, err := DefaultSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.apply(opts...); err != nil {
		return nil, err
	}
	start := time.Now()
	t, err := document.DecodePlain(r)
	if err != nil {
		return nil, err
	}
	log().Debug().
		Int("nodes", t.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Imported XML")
	return &Database{Tree: t, Settings: settings}, nil
}
