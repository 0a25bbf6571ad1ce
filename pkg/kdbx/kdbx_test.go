package kdbx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/container"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
	"github.com/saylorsolutions/gokdbx/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

func testKey(t *testing.T, pass string, opts ...compositekey.FactorOpt) *compositekey.Key {
	key, err := compositekey.New(append([]compositekey.FactorOpt{compositekey.Password([]byte(pass))}, opts...)...)
	require.NoError(t, err)
	return key
}

func fastAES(t *testing.T) kdf.KDF {
	k, err := kdf.NewAES(kdf.SetShortDelayRounds())
	require.NoError(t, err)
	return k
}

func fastArgon2(t *testing.T) kdf.KDF {
	k, err := kdf.NewArgon2(kdf.SetShortDelayCost())
	require.NoError(t, err)
	return k
}

func testDatabase(t *testing.T, opts ...SettingsOpt) *Database {
	db, err := New("Test", append([]SettingsOpt{SetKDF(fastArgon2(t))}, opts...)...)
	require.NoError(t, err)
	tr := db.Tree
	root := tr.Root().UUID()

	e := tree.NewEntry()
	e.Set(tree.KeyTitle, "Mail")
	e.Set(tree.KeyUserName, "alice")
	e.Set(tree.KeyPassword, "hunter2")
	e.Set("otp", "otpauth://totp/Mail:alice?secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ&period=30&digits=8&algorithm=SHA1")
	require.NoError(t, tr.AddEntry(root, e))

	g := tree.NewGroup("Banking")
	require.NoError(t, tr.AddGroup(root, g))
	bank := tree.NewEntry()
	bank.Set(tree.KeyTitle, "Bank")
	require.NoError(t, tr.AddEntry(g.UUID(), bank))
	require.NoError(t, tr.Attach(bank.UUID(), "statement.pdf", []byte("%PDF-1.4 statement")))
	require.NoError(t, tr.SetAttribute(bank.UUID(), tree.KeyPassword, "s3cr3t"))
	return db
}

func encode(t *testing.T, db *Database, key *compositekey.Key) []byte {
	var buf bytes.Buffer
	require.NoError(t, db.Encode(context.Background(), &buf, key))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	ciphers := []uuid.UUID{container.AES256UUID, container.TwofishUUID, container.ChaCha20UUID}
	kdfs := map[string]func(*testing.T) kdf.KDF{"AES-KDF": fastAES, "Argon2id": fastArgon2}
	streams := []protect.StreamID{protect.StreamSalsa20, protect.StreamChaCha20}

	for _, cid := range ciphers {
		for kdfName, newKDF := range kdfs {
			for _, sid := range streams {
				t.Run(container.CipherName(cid)+"/"+kdfName+"/"+sid.String(), func(t *testing.T) {
					db := testDatabase(t, SetCipher(cid), SetKDF(newKDF(t)), SetInnerStream(sid))
					key := testKey(t, testPassword)
					data := encode(t, db, key)
					assert.NotContains(t, string(data), "hunter2")

					decoded, err := Decode(context.Background(), bytes.NewReader(data), key)
					require.NoError(t, err)
					assert.True(t, db.Tree.Equal(decoded.Tree), "Decoded tree should equal the original")
					assert.Equal(t, cid, decoded.Settings.Cipher)
					assert.Equal(t, sid, decoded.Settings.InnerStream)
					assert.Equal(t, db.Settings.KDF.UUID(), decoded.Settings.KDF.UUID())
					assert.Equal(t, container.CompressionGzip, decoded.Settings.Compression)
				})
			}
		}
	}
}

func TestRoundTrip_Uncompressed(t *testing.T) {
	db := testDatabase(t, SetCompression(container.CompressionNone))
	key := testKey(t, testPassword)
	decoded, err := Decode(context.Background(), bytes.NewReader(encode(t, db, key)), key)
	require.NoError(t, err)
	assert.Equal(t, container.CompressionNone, decoded.Settings.Compression)
	assert.True(t, db.Tree.Equal(decoded.Tree))
}

func TestReencode(t *testing.T) {
	db := testDatabase(t)
	key := testKey(t, testPassword)
	first, err := Decode(context.Background(), bytes.NewReader(encode(t, db, key)), key)
	require.NoError(t, err)
	second, err := Decode(context.Background(), bytes.NewReader(encode(t, first, key)), key)
	require.NoError(t, err)
	assert.True(t, db.Tree.Equal(second.Tree), "Decoded databases should re-encode without loss")
}

func TestDecode_WrongKey(t *testing.T) {
	db := testDatabase(t)
	data := encode(t, db, testKey(t, testPassword))
	decoded, err := Decode(context.Background(), bytes.NewReader(data), testKey(t, "Correct horse battery staple"))
	assert.ErrorIs(t, err, ErrIntegrityFailure)
	assert.Nil(t, decoded)
}

func TestDecode_Tampered(t *testing.T) {
	key := testKey(t, testPassword)
	data := encode(t, testDatabase(t), key)
	_, rawHeader, err := container.ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)

	mut := bytes.Clone(data)
	mut[len(rawHeader)+64+40] ^= 0x80
	decoded, err := Decode(context.Background(), bytes.NewReader(mut), key)
	assert.ErrorIs(t, err, ErrIntegrityFailure)
	assert.Nil(t, decoded)
}

func TestDecode_NotADatabase(t *testing.T) {
	_, err := Decode(context.Background(), bytes.NewReader([]byte("plain text, not a database")), testKey(t, testPassword))
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestEncode_FreshKeyMaterial(t *testing.T) {
	db := testDatabase(t)
	key := testKey(t, testPassword)
	first := encode(t, db, key)
	second := encode(t, db, key)
	assert.NotEqual(t, first, second)

	h1, _, err := container.ReadHeader(bytes.NewReader(first))
	require.NoError(t, err)
	h2, _, err := container.ReadHeader(bytes.NewReader(second))
	require.NoError(t, err)
	assert.NotEqual(t, h1.MasterSeed, h2.MasterSeed)
	assert.NotEqual(t, h1.IV, h2.IV)
	assert.False(t, h1.KDFParams.Equal(h2.KDFParams), "KDF salt should be regenerated")
}

func TestKeyFileFactor(t *testing.T) {
	var keyFile bytes.Buffer
	require.NoError(t, compositekey.GenerateKeyFile(&keyFile))
	key := testKey(t, testPassword, compositekey.KeyFile(keyFile.Bytes()))

	data := encode(t, testDatabase(t), key)
	_, err := Decode(context.Background(), bytes.NewReader(data), testKey(t, testPassword))
	assert.ErrorIs(t, err, ErrIntegrityFailure, "The password alone should not open the database")

	again := testKey(t, testPassword, compositekey.KeyFileReader(bytes.NewReader(keyFile.Bytes())))
	_, err = Decode(context.Background(), bytes.NewReader(data), again)
	assert.NoError(t, err)
}

func TestDecode_Cancelled(t *testing.T) {
	key := testKey(t, testPassword)
	data := encode(t, testDatabase(t), key)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, bytes.NewReader(data), key)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSettings_Neg(t *testing.T) {
	_, err := New("Bad", SetInnerStream(protect.StreamArcFour))
	assert.ErrorIs(t, err, ErrUnsupportedStream)
	_, err = New("Bad", SetInnerStream(protect.StreamNone))
	assert.ErrorIs(t, err, ErrUnsupportedStream)
	_, err = New("Bad", SetCipher(uuid.New()))
	assert.ErrorIs(t, err, ErrUnsupportedCipher)
	_, err = New("Bad", SetKDF(nil))
	assert.ErrorIs(t, err, ErrInvalidKDFParameters)

	db := testDatabase(t)
	db.Settings.InnerStream = protect.StreamArcFour
	var buf bytes.Buffer
	err = db.Encode(context.Background(), &buf, testKey(t, testPassword))
	assert.ErrorIs(t, err, ErrUnsupportedStream)
	assert.Zero(t, buf.Len())
}

func TestDefaultSettings(t *testing.T) {
	s, err := DefaultSettings()
	require.NoError(t, err)
	assert.Equal(t, container.ChaCha20UUID, s.Cipher)
	assert.Equal(t, container.CompressionGzip, s.Compression)
	assert.Equal(t, kdf.Argon2idUUID, s.KDF.UUID())
	assert.Equal(t, protect.StreamChaCha20, s.InnerStream)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kdbx")
	key := testKey(t, testPassword)
	db := testDatabase(t)
	require.NoError(t, db.SaveFile(context.Background(), path, key))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, fileMode, info.Mode().Perm())
	}

	opened, err := OpenFile(context.Background(), path, key)
	require.NoError(t, err)
	assert.True(t, db.Tree.Equal(opened.Tree))

	e := opened.Tree.FindEntries(func(e *tree.Entry) bool { return e.Title() == "Mail" })
	require.Len(t, e, 1)
	require.NoError(t, opened.Tree.SetAttribute(e[0].UUID(), tree.KeyPassword, "changed"))
	require.NoError(t, opened.SaveFile(context.Background(), path, key))

	reopened, err := OpenFile(context.Background(), path, key)
	require.NoError(t, err)
	e = reopened.Tree.FindEntries(func(e *tree.Entry) bool { return e.Title() == "Mail" })
	require.Len(t, e, 1)
	assert.Equal(t, "changed", e[0].Password())
	require.Len(t, e[0].History(), 1)
	assert.Equal(t, "hunter2", e[0].History()[0].Password())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "No temporary files should be left behind")
}

func TestSaveFile_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kdbx")
	key := testKey(t, testPassword)
	db := testDatabase(t)
	require.NoError(t, db.SaveFile(context.Background(), path, key))
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.SaveFile(ctx, path, key)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, after)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "The temporary file should be removed")
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "missing.kdbx"), testKey(t, testPassword))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExportImportXML(t *testing.T) {
	db := testDatabase(t)
	var xmlDoc bytes.Buffer
	require.NoError(t, db.ExportXML(&xmlDoc))
	assert.Contains(t, xmlDoc.String(), `<Value ProtectInMemory="True">hunter2</Value>`, "Exports are plain text")

	imported, err := ImportXML(bytes.NewReader(xmlDoc.Bytes()), SetKDF(fastAES(t)), SetCipher(container.TwofishUUID))
	require.NoError(t, err)
	assert.True(t, db.Tree.Equal(imported.Tree))
	assert.Equal(t, container.TwofishUUID, imported.Settings.Cipher)

	key := testKey(t, testPassword)
	decoded, err := Decode(context.Background(), bytes.NewReader(encode(t, imported, key)), key)
	require.NoError(t, err)
	assert.True(t, db.Tree.Equal(decoded.Tree), "An imported tree should survive encryption")
}

func TestImportXML_Neg(t *testing.T) {
	_, err := ImportXML(bytes.NewReader([]byte("<NotKeePass/>")))
	assert.ErrorIs(t, err, ErrMalformedDocument)
	_, err = ImportXML(bytes.NewReader([]byte("<KeePassFile><Root/></KeePassFile>")), SetKDF(nil))
	assert.Error(t, err)
	assert.Error(t, (&Database{}).ExportXML(&bytes.Buffer{}))
}

func TestEntryOTP(t *testing.T) {
	db := testDatabase(t)
	key := testKey(t, testPassword)
	decoded, err := Decode(context.Background(), bytes.NewReader(encode(t, db, key)), key)
	require.NoError(t, err)

	e := decoded.Tree.FindEntries(func(e *tree.Entry) bool { return e.Title() == "Mail" })
	require.Len(t, e, 1)
	gen, err := e[0].OTP()
	require.NoError(t, err)
	code, err := gen.Code(time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "94287082", code)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	t.Cleanup(func() {
		SetLogger(zerolog.Nop())
	})

	key := testKey(t, testPassword)
	data := encode(t, testDatabase(t), key)
	_, err := Decode(context.Background(), bytes.NewReader(data), key)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Sealed container")
	assert.Contains(t, out, "Decoded document")
	assert.NotContains(t, out, testPassword)
	assert.NotContains(t, out, "hunter2")
}
