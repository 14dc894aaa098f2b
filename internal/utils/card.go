package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCipher is wrapped by every protect/reveal failure.
var ErrCipher = errors.New("card cipher failure")

const maskPrefix = "**** **** **** "

// CardCipher encrypts card numbers deterministically: the same number under
// the same key always yields the same ciphertext, so ciphertext can be used
// as a unique lookup key. Equal numbers are therefore visible as equal
// ciphertexts.
//
// The IV is derived from an HMAC of the plaintext (synthetic IV), which also
// lets Reveal detect a wrong key.
type CardCipher struct {
	block  cipher.Block
	macKey []byte
}

// NewCardCipher derives an encryption key and a MAC key from key.
func NewCardCipher(key []byte) (*CardCipher, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("%w: encryption key must be 16, 24, or 32 bytes, got %d", ErrCipher, len(key))
	}

	r := hkdf.New(sha256.New, key, nil, []byte("bankcards/card-number"))
	encKey := make([]byte, len(key))
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(r, encKey); err != nil {
		return nil, fmt.Errorf("%w: derive encryption key: %v", ErrCipher, err)
	}
	if _, err := io.ReadFull(r, macKey); err != nil {
		return nil, fmt.Errorf("%w: derive mac key: %v", ErrCipher, err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrCipher, err)
	}
	return &CardCipher{block: block, macKey: macKey}, nil
}

func (c *CardCipher) syntheticIV(plain []byte) []byte {
	h := hmac.New(sha256.New, c.macKey)
	h.Write(plain)
	return h.Sum(nil)[:aes.BlockSize]
}

// Protect encrypts a card number and returns hex(IV || ciphertext).
func (c *CardCipher) Protect(number string) (string, error) {
	if len(number) == 0 {
		return "", fmt.Errorf("%w: input data is empty", ErrCipher)
	}

	data := []byte(number)
	iv := c.syntheticIV(data)

	// PKCS#7 padding
	padding := aes.BlockSize - len(data)%aes.BlockSize
	data = append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)

	ciphertext := make([]byte, len(data))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, data)

	final := append(append(make([]byte, 0, len(iv)+len(ciphertext)), iv...), ciphertext...)
	return hex.EncodeToString(final), nil
}

// Reveal decrypts a value produced by Protect.
func (c *CardCipher) Reveal(encrypted string) (string, error) {
	if len(encrypted) == 0 {
		return "", fmt.Errorf("%w: encrypted data is empty", ErrCipher)
	}

	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: decode hex: %v", ErrCipher, err)
	}
	if len(data) < 2*aes.BlockSize {
		return "", fmt.Errorf("%w: encrypted data too short: %d bytes", ErrCipher, len(data))
	}

	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: invalid ciphertext length: %d bytes", ErrCipher, len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ciphertext)

	padding := int(plain[len(plain)-1])
	if padding > aes.BlockSize || padding == 0 {
		return "", fmt.Errorf("%w: invalid padding", ErrCipher)
	}
	for _, b := range plain[len(plain)-padding:] {
		if int(b) != padding {
			return "", fmt.Errorf("%w: invalid padding", ErrCipher)
		}
	}
	plain = plain[:len(plain)-padding]

	if !hmac.Equal(iv, c.syntheticIV(plain)) {
		return "", fmt.Errorf("%w: authentication failed", ErrCipher)
	}
	return string(plain), nil
}

// MaskCardNumber keeps the last four characters of a plaintext number.
// Inputs shorter than four characters are returned unchanged.
func MaskCardNumber(number string) string {
	if len(number) < 4 {
		return number
	}
	return maskPrefix + number[len(number)-4:]
}
