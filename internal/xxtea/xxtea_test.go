package xxtea

import (
	"bytes"
	"testing"

	ref "github.com/xxtea/xxtea-go/xxtea"
)

func TestEncryptDecrypt(t *testing.T) {
	tests := []struct {
		name string
		data string
		key  string
	}{
		{
			name: "simple text",
			data: "Hello, World!",
			key:  "1234567890",
		},
		{
			name: "empty key",
			data: "Test data",
			key:  "",
		},
		{
			name: "exact 16 byte key",
			data: "Test with 16byte",
			key:  "1234567890123456",
		},
		{
			name: "long key (truncated to 16)",
			data: "Test with long key",
			key:  "12345678901234567890",
		},
		{
			name: "binary data",
			data: "\x00\x01\x02\x03\x04\x05\x06\x07",
			key:  "binarykey",
		},
		{
			name: "single byte",
			data: "a",
			key:  "key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt([]byte(tt.data), []byte(tt.key))
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			// The reference library uses the same framing.
			if want := ref.Encrypt([]byte(tt.data), []byte(tt.key)); !bytes.Equal(encrypted, want) {
				t.Errorf("Encrypt = %x, reference %x", encrypted, want)
			}

			decrypted, err := Decrypt(encrypted, []byte(tt.key))
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(decrypted, []byte(tt.data)) {
				t.Errorf("Decrypted data doesn't match original\nOriginal:  %q\nDecrypted: %q", tt.data, string(decrypted))
			}
		})
	}
}

func TestRaw(t *testing.T) {
	key := []byte("scriptkey")
	tests := []struct {
		name    string
		size    int
		changed bool
	}{
		{"empty", 0, false},
		{"one word", 4, false},
		{"two words", 8, true},
		{"unaligned tail", 4099, true},
		{"page", 0x4000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i * 7)
			}
			enc := EncryptRaw(data, key)
			if len(enc) != len(data) {
				t.Fatalf("length %d, want %d", len(enc), len(data))
			}
			if got := !bytes.Equal(enc, data); got != tt.changed {
				t.Errorf("changed = %v, want %v", got, tt.changed)
			}
			tail := tt.size &^ 3
			if !bytes.Equal(enc[tail:], data[tail:]) {
				t.Errorf("unaligned tail was modified")
			}
			if dec := DecryptRaw(enc, key); !bytes.Equal(dec, data) {
				t.Errorf("DecryptRaw does not restore the input")
			}
		})
	}
}

func TestRawMatchesFramedCore(t *testing.T) {
	// A framed encryption of n bytes is a raw encryption of the same
	// bytes plus the length word.
	data := []byte("0123456789abcdef")
	key := []byte("k")
	framed, err := Encrypt(data, key)
	if err != nil {
		t.Fatal(err)
	}
	withLen := append(append([]byte{}, data...), byte(len(data)), 0, 0, 0)
	if raw := EncryptRaw(withLen, key); !bytes.Equal(raw, framed) {
		t.Errorf("raw %x, framed %x", raw, framed)
	}
}

func TestEdgeCases(t *testing.T) {
	if _, err := Encrypt([]byte{}, []byte("key")); err != ErrEmpty {
		t.Errorf("Encrypt(empty) = %v", err)
	}
	if _, err := Decrypt(nil, []byte("key")); err != ErrEmpty {
		t.Errorf("Decrypt(empty) = %v", err)
	}
	enc, _ := Encrypt([]byte("payload"), []byte("right"))
	if out, err := Decrypt(enc, []byte("wrong")); err == nil && bytes.Equal(out, []byte("payload")) {
		t.Errorf("wrong key decrypted the payload")
	}
}

func BenchmarkEncryptRaw(b *testing.B) {
	data := make([]byte, 0x4000)
	key := []byte("benchmarkkey123")
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		EncryptRaw(data, key)
	}
}
