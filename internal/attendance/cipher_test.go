package attendance

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedKey() Key {
	return Key{
		Key: bytes.Repeat([]byte{0x11}, KeySize),
		IV:  bytes.Repeat([]byte{0x22}, IVSize),
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	require.NoError(t, a.Validate())
	assert.NotEqual(t, a.Key, b.Key)
	assert.NotEqual(t, a.IV, b.IV)
}

func TestEncryptDecryptID(t *testing.T) {
	k := fixedKey()
	for _, id := range []string{"", "S1", "0612707123", strings.Repeat("x", 16), "matricola-ü"} {
		enc, err := EncryptID(id, k)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(enc, "0x"))

		raw, err := hex.DecodeString(enc[2:])
		require.NoError(t, err)
		assert.Zero(t, len(raw)%IVSize, "ciphertext is padded to whole blocks")

		got, err := DecryptID(enc, k)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestDecryptID_WrongKey(t *testing.T) {
	enc, err := EncryptID("0612707123", fixedKey())
	require.NoError(t, err)

	other := fixedKey()
	other.Key = bytes.Repeat([]byte{0x33}, KeySize)
	got, err := DecryptID(enc, other)
	if err == nil {
		assert.NotEqual(t, "0612707123", got)
	} else {
		assert.True(t, errors.Is(err, ErrBadPadding))
	}
}

func TestDecryptID_Errors(t *testing.T) {
	k := fixedKey()

	_, err := DecryptID("not-hex", k)
	assert.Error(t, err)

	_, err = DecryptID("0x0102", k)
	assert.True(t, errors.Is(err, ErrBadPadding))

	_, err = DecryptID("0x00", Key{Key: []byte{1}, IV: k.IV})
	assert.Error(t, err)
}

func TestDecryptRecords(t *testing.T) {
	k := fixedKey()
	enc1, err := EncryptID("S1", k)
	require.NoError(t, err)
	enc2, err := EncryptID("S2", k)
	require.NoError(t, err)

	in := []Record{
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: enc1},
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: enc2},
	}
	out, err := DecryptRecords(in, k)
	require.NoError(t, err)
	assert.Equal(t, "S1", out[0].EncryptedId)
	assert.Equal(t, "S2", out[1].EncryptedId)
	assert.Equal(t, enc1, in[0].EncryptedId, "input is not modified")

	in = append(in, Record{EncryptedId: "0xzz"})
	_, err = DecryptRecords(in, k)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
}

// bytesRepr renders b the way the device backend writes ciphertexts on
// chain: as the text of a bytes literal.
func bytesRepr(b []byte) string {
	quote := byte('\'')
	if bytes.IndexByte(b, '\'') >= 0 && bytes.IndexByte(b, '"') < 0 {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte('b')
	sb.WriteByte(quote)
	for _, c := range b {
		switch {
		case c == '\\' || c == quote:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c < 0x20 || c >= 0x7f:
			sb.WriteString(`\x`)
			sb.WriteString(hex.EncodeToString([]byte{c}))
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

func TestDecryptID_BytesLiteral(t *testing.T) {
	k := fixedKey()
	for _, id := range []string{"123456789", "0612707123", strings.Repeat("7", 20)} {
		enc, err := EncryptID(id, k)
		require.NoError(t, err)
		raw, err := hex.DecodeString(enc[2:])
		require.NoError(t, err)

		got, err := DecryptID(bytesRepr(raw), k)
		require.NoError(t, err, bytesRepr(raw))
		assert.Equal(t, id, got)
	}
}

func TestDecodeBytesLiteral(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: `b'\xc3\x19e'`, want: []byte{0xc3, 0x19, 'e'}},
		{in: `b"it's"`, want: []byte("it's")},
		{in: `b'a\'b\\c\t\n\r'`, want: []byte("a'b\\c\t\n\r")},
		{in: `b''`, want: []byte{}},
		{in: `b'\x4'`, wantErr: true},
		{in: `b'\xzz'`, wantErr: true},
		{in: `b'\q'`, wantErr: true},
		{in: `b'abc`, wantErr: true},
		{in: `b'a'b'`, wantErr: true},
		{in: `b'abc\'`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := decodeCiphertext(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadLiteral)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
