// Package radio implements the symmetric cipher used for mesh packet
// payloads: AES in counter mode with a nonce derived from the packet id and
// the sending node's address.
package radio

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultChannelKeyBase64 is the well-known shared key for the network's
// default channel, as shipped by the device firmware.
const DefaultChannelKeyBase64 = "1PG7OiApB1nwvP+rz05pAQ=="

// ErrInvalidKeyLength is returned when the channel key is not a valid
// AES-128 or AES-256 key.
var ErrInvalidKeyLength = errors.New("radio: channel key must be 16 or 32 bytes")

// ParseKey decodes a base64-encoded channel key and checks its length.
func ParseKey(keyB64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode channel key: %w", err)
	}
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeyLength, len(key))
	}
	return key, nil
}

// Nonce builds the 16-byte CTR nonce for a packet: the packet id as 8
// little-endian bytes, the sender address as 4 little-endian bytes, then a
// 4-byte block counter starting at zero. Distinct (packetID, fromNode)
// pairs always produce distinct nonces.
func Nonce(packetID uint64, fromNode uint32) [16]byte {
	var nonce [16]byte
	binary.LittleEndian.PutUint64(nonce[0:8], packetID)
	binary.LittleEndian.PutUint32(nonce[8:12], fromNode)
	// bytes 12..16 are the block counter, already zero
	return nonce
}

// Decrypt recovers the cleartext of an encrypted packet payload. It is a
// pure function of its inputs. The key must be 16 or 32 bytes; any other
// length is refused with ErrInvalidKeyLength.
//
// CTR mode cannot itself detect a wrong key or corrupted ciphertext: the
// caller must validate the output by parsing it as a mesh Data message and
// treat a parse failure as a decryption failure. The two causes are not
// distinguishable.
func Decrypt(ciphertext []byte, packetID uint64, fromNode uint32, key []byte) ([]byte, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("radio: init cipher: %w", err)
	}
	nonce := Nonce(packetID, fromNode)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, nonce[:]).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// Encrypt is the inverse of Decrypt. CTR mode is symmetric, so this is the
// same keystream XOR; it exists as a named operation for tools and tests
// that fabricate traffic.
func Encrypt(plaintext []byte, packetID uint64, fromNode uint32, key []byte) ([]byte, error) {
	return Decrypt(plaintext, packetID, fromNode, key)
}
