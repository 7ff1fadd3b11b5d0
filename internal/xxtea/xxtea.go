// Package xxtea implements the XXTEA block cipher.
//
// Two framings are provided. EncryptRaw and DecryptRaw transform the
// 4-byte aligned prefix of the input in place of the original bytes and
// leave the tail alone, so the output is exactly as long as the input,
// which is what script containers expect. Encrypt and Decrypt append the
// plaintext length before encrypting, the format used by the common
// xxtea libraries.
package xxtea

import (
	"encoding/binary"
	"errors"
)

// delta is the key schedule constant.
const delta = 0x9e3779b9

// KeySize is the key length; shorter keys are zero padded, longer ones cut.
const KeySize = 16

var (
	ErrEmpty  = errors.New("xxtea: empty data")
	ErrFramed = errors.New("xxtea: invalid length in data")
)

func mx(sum, y, z uint32, p, e int, k []uint32) uint32 {
	return ((z>>5 ^ y<<2) + (y>>3 ^ z<<4)) ^ ((sum ^ y) + (k[(p&3)^e] ^ z))
}

func encryptWords(v, k []uint32) {
	n := len(v) - 1
	if n < 1 {
		return
	}
	z := v[n]
	var y, sum uint32
	for q := 6 + 52/(n+1); q > 0; q-- {
		sum += delta
		e := int(sum >> 2 & 3)
		for p := 0; p < n; p++ {
			y = v[p+1]
			v[p] += mx(sum, y, z, p, e, k)
			z = v[p]
		}
		y = v[0]
		v[n] += mx(sum, y, z, n, e, k)
		z = v[n]
	}
}

func decryptWords(v, k []uint32) {
	n := len(v) - 1
	if n < 1 {
		return
	}
	y := v[0]
	q := 6 + 52/(n+1)
	for sum := uint32(q) * delta; sum != 0; sum -= delta {
		e := int(sum >> 2 & 3)
		var z uint32
		for p := n; p > 0; p-- {
			z = v[p-1]
			v[p] -= mx(sum, y, z, p, e, k)
			y = v[p]
		}
		z = v[n]
		v[0] -= mx(sum, y, z, 0, e, k)
		y = v[0]
	}
}

func keyWords(key []byte) []uint32 {
	var fixed [KeySize]byte
	copy(fixed[:], key)
	k := make([]uint32, KeySize/4)
	for i := range k {
		k[i] = binary.LittleEndian.Uint32(fixed[i*4:])
	}
	return k
}

// words packs b little-endian, zero padding the last word.
func words(b []byte, extra int) []uint32 {
	v := make([]uint32, (len(b)+3)/4+extra)
	for i, c := range b {
		v[i/4] |= uint32(c) << (i % 4 * 8)
	}
	return v
}

func unpack(v []uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(v[i/4] >> (i % 4 * 8))
	}
	return out
}

// EncryptRaw encrypts the aligned prefix of data. Inputs shorter than two
// words come back unchanged.
func EncryptRaw(data, key []byte) []byte {
	return raw(data, key, encryptWords)
}

// DecryptRaw reverses EncryptRaw.
func DecryptRaw(data, key []byte) []byte {
	return raw(data, key, decryptWords)
}

func raw(data, key []byte, f func(v, k []uint32)) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	aligned := len(data) &^ 3
	if aligned < 8 {
		return out
	}
	v := words(data[:aligned], 0)
	f(v, keyWords(key))
	copy(out, unpack(v, aligned))
	return out
}

// Encrypt encrypts data with its length appended.
func Encrypt(data, key []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	v := words(data, 1)
	v[len(v)-1] = uint32(len(data))
	encryptWords(v, keyWords(key))
	return unpack(v, len(v)*4), nil
}

// Decrypt reverses Encrypt and checks the embedded length.
func Decrypt(data, key []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	v := words(data, 0)
	decryptWords(v, keyWords(key))
	total := len(v) * 4
	m := int(v[len(v)-1])
	if m < total-7 || m > total-4 {
		return nil, ErrFramed
	}
	return unpack(v, m), nil
}
