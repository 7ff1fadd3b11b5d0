package cipher

import (
	"bytes"
	"crypto/aes"
	"errors"
	"testing"

	"sctools/internal/xxtea"
)

func TestRoundTrip(t *testing.T) {
	keys := map[string][]byte{
		"aes":          bytes.Repeat([]byte{0x5A}, 32),
		"xxtea":        []byte("0123456789abcdef"),
		"xxtea-framed": []byte("0123456789abcdef"),
	}
	for _, name := range Names() {
		c, err := Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		for _, size := range []int{0, 15, 16, 33, 0x4000} {
			if size == 0 && c.Framed {
				continue
			}
			data := make([]byte, size)
			for i := range data {
				data[i] = byte(i)
			}
			enc, err := c.Encrypt(data, keys[name])
			if err != nil {
				t.Fatalf("%s: Encrypt(%d): %v", name, size, err)
			}
			want := size
			if c.Framed {
				want = (size+3)&^3 + 4
			}
			if len(enc) != want {
				t.Errorf("%s: %d bytes became %d, want %d", name, size, len(enc), want)
			}
			dec, err := c.Decrypt(enc, keys[name])
			if err != nil {
				t.Fatalf("%s: Decrypt(%d): %v", name, size, err)
			}
			if !bytes.Equal(dec, data) {
				t.Errorf("%s: round trip of %d bytes differs", name, size)
			}
		}
	}
}

func TestAESRounds(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	data := append(bytes.Repeat([]byte{2}, 16), 0xEE)
	c, _ := Lookup("AES")
	got, err := c.Encrypt(data, key)
	if err != nil {
		t.Fatal(err)
	}

	block, _ := aes.NewCipher(key)
	want := bytes.Repeat([]byte{2}, 16)
	for range Rounds {
		block.Encrypt(want, want)
	}
	if !bytes.Equal(got[:16], want) {
		t.Errorf("block = %x, want %x", got[:16], want)
	}
	if got[16] != 0xEE {
		t.Errorf("tail byte changed to %02X", got[16])
	}
}

func TestCheckKey(t *testing.T) {
	c, _ := Lookup("aes")
	if err := c.CheckKey(make([]byte, 16)); err == nil {
		t.Errorf("16-byte aes key accepted")
	}
	if err := c.CheckKey(make([]byte, 32)); err != nil {
		t.Errorf("32-byte aes key rejected: %v", err)
	}
	if _, err := Lookup("rot13"); err == nil {
		t.Errorf("unknown cipher found")
	}
}

func TestFramed(t *testing.T) {
	c, err := Lookup("xxtea-framed")
	if err != nil {
		t.Fatal(err)
	}
	key := []byte("framing key")
	enc, err := c.Encrypt([]byte("script"), key)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := xxtea.Encrypt([]byte("script"), key)
	if !bytes.Equal(enc, want) {
		t.Errorf("ciphertext = %x, want %x", enc, want)
	}
	if _, err := c.Encrypt(nil, key); !errors.Is(err, xxtea.ErrEmpty) {
		t.Errorf("Encrypt(empty) = %v, want ErrEmpty", err)
	}
	dec, err := c.Decrypt(enc, key)
	if err != nil || string(dec) != "script" {
		t.Errorf("Decrypt = %q, %v", dec, err)
	}
}
