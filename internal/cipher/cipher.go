// Package cipher encrypts and decrypts script code the way the games store
// it. The aes and xxtea transforms preserve length: only the block-aligned
// prefix is touched and the tail is copied as is. xxtea-framed is the
// length-tagged format of the common xxtea libraries.
package cipher

import (
	"crypto/aes"
	"fmt"
	"sort"
	"strings"

	"sctools/internal/xxtea"
)

// Transform maps data to data under key.
type Transform func(data, key []byte) ([]byte, error)

// Cipher is a named pair of transforms.
type Cipher struct {
	Name    string
	KeySize int // required key length, 0 for any
	// Framed ciphers store the plaintext length, so the ciphertext is
	// padded to a word and one word longer. Empty input is an error.
	Framed  bool
	Encrypt Transform
	Decrypt Transform
}

// Rounds is how many times each AES block is encrypted.
const Rounds = 16

var ciphers = map[string]Cipher{
	"aes": {
		Name:    "aes",
		KeySize: 32,
		Encrypt: func(data, key []byte) ([]byte, error) { return aesECB(data, key, true) },
		Decrypt: func(data, key []byte) ([]byte, error) { return aesECB(data, key, false) },
	},
	"xxtea": {
		Name:    "xxtea",
		KeySize: 0,
		Encrypt: func(data, key []byte) ([]byte, error) { return xxtea.EncryptRaw(data, key), nil },
		Decrypt: func(data, key []byte) ([]byte, error) { return xxtea.DecryptRaw(data, key), nil },
	},
	"xxtea-framed": {
		Name:    "xxtea-framed",
		Framed:  true,
		Encrypt: xxtea.Encrypt,
		Decrypt: xxtea.Decrypt,
	},
}

// Lookup returns the cipher called name.
func Lookup(name string) (Cipher, error) {
	c, ok := ciphers[strings.ToLower(name)]
	if !ok {
		return Cipher{}, fmt.Errorf("unknown cipher %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names lists the known ciphers.
func Names() []string {
	names := make([]string, 0, len(ciphers))
	for n := range ciphers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckKey validates key for c.
func (c Cipher) CheckKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%s: empty key", c.Name)
	}
	if c.KeySize != 0 && len(key) != c.KeySize {
		return fmt.Errorf("%s: key is %d bytes, want %d", c.Name, len(key), c.KeySize)
	}
	return nil
}

func aesECB(data, key []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	aligned := len(out) &^ (aes.BlockSize - 1)
	for off := 0; off < aligned; off += aes.BlockSize {
		b := out[off : off+aes.BlockSize]
		for range Rounds {
			if encrypt {
				block.Encrypt(b, b)
			} else {
				block.Decrypt(b, b)
			}
		}
	}
	return out, nil
}
