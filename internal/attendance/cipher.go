package attendance

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize is the CFB initialisation vector length.
	IVSize = aes.BlockSize
)

// ErrBadPadding is returned when a decrypted id does not end in valid
// PKCS#7 padding, which usually means the wrong key was used.
var ErrBadPadding = errors.New("invalid padding")

// ErrBadLiteral is returned for a malformed b'...' encrypted id.
var ErrBadLiteral = errors.New("malformed bytes literal")

// Key is the key and IV used to encrypt student ids of one keychain entry.
type Key struct {
	Key []byte
	IV  []byte
}

// GenerateKey returns a fresh random key and IV.
func GenerateKey() (Key, error) {
	k := Key{Key: make([]byte, KeySize), IV: make([]byte, IVSize)}
	if _, err := rand.Read(k.Key); err != nil {
		return Key{}, fmt.Errorf("failed to generate key: %w", err)
	}
	if _, err := rand.Read(k.IV); err != nil {
		return Key{}, fmt.Errorf("failed to generate iv: %w", err)
	}
	return k, nil
}

// Validate checks key and IV lengths.
func (k Key) Validate() error {
	if len(k.Key) != KeySize {
		return fmt.Errorf("key must be %d bytes, got %d", KeySize, len(k.Key))
	}
	if len(k.IV) != IVSize {
		return fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(k.IV))
	}
	return nil
}

// EncryptID encrypts a student id with AES-256-CFB over PKCS#7 padded
// input and returns the 0x-prefixed hex ciphertext stored on chain.
func EncryptID(id string, k Key) (string, error) {
	block, err := k.block()
	if err != nil {
		return "", err
	}
	plain := pkcs7Pad([]byte(id), aes.BlockSize)
	out := make([]byte, len(plain))
	//nolint:staticcheck // CFB is the format of records already on chain.
	cipher.NewCFBEncrypter(block, k.IV).XORKeyStream(out, plain)
	return hexutil.Encode(out), nil
}

// DecryptID reverses EncryptID. Besides 0x-hex it accepts the b'...'
// bytes-literal text the device backend stores on chain.
func DecryptID(encrypted string, k Key) (string, error) {
	block, err := k.block()
	if err != nil {
		return "", err
	}
	data, err := decodeCiphertext(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted id: %w", err)
	}
	out := make([]byte, len(data))
	//nolint:staticcheck // CFB is the format of records already on chain.
	cipher.NewCFBDecrypter(block, k.IV).XORKeyStream(out, data)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// DecryptRecords returns a copy of records with every EncryptedId replaced
// by its plaintext. The first record that fails to decrypt aborts.
func DecryptRecords(records []Record, k Key) ([]Record, error) {
	out := make([]Record, len(records))
	for i, rec := range records {
		id, err := DecryptID(rec.EncryptedId, k)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec.EncryptedId = id
		out[i] = rec
	}
	return out, nil
}

func decodeCiphertext(s string) ([]byte, error) {
	if len(s) >= 3 && s[0] == 'b' && (s[1] == '\'' || s[1] == '"') {
		return decodeBytesLiteral(s)
	}
	return hexutil.Decode(s)
}

// decodeBytesLiteral parses a b'...' or b"..." literal: printable ASCII
// as is, plus the \\ \' \" \t \n \r and \xhh escapes.
func decodeBytesLiteral(s string) ([]byte, error) {
	quote := s[1]
	if s[len(s)-1] != quote {
		return nil, ErrBadLiteral
	}
	body := s[2 : len(s)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == quote {
			return nil, ErrBadLiteral
		}
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(body) {
			return nil, ErrBadLiteral
		}
		switch body[i] {
		case '\\', '\'', '"':
			out = append(out, body[i])
		case 't':
			out = append(out, '\t')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 'x':
			if i+2 >= len(body) {
				return nil, ErrBadLiteral
			}
			b, err := hex.DecodeString(body[i+1 : i+3])
			if err != nil {
				return nil, ErrBadLiteral
			}
			out = append(out, b[0])
			i += 2
		default:
			return nil, ErrBadLiteral
		}
	}
	return out, nil
}

func (k Key) block() (cipher.Block, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return aes.NewCipher(k.Key)
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
