// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"filippo.io/age"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/evidencefs/evidencefs/lib/secret"
)

// encryptedBlockOverhead is the per-ciphertext overhead: a 24-byte
// XChaCha20-Poly1305 nonce prefix plus the 16-byte Poly1305 tag.
const encryptedBlockOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// sealMasterKey seals the container master key to an age scrypt
// (passphrase) recipient, producing the keyslot block. The passphrase
// buffer is borrowed, not closed.
func sealMasterKey(masterKey []byte, passphrase *secret.Buffer) ([]byte, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(masterKey))
	}

	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var keyslot bytes.Buffer
	writer, err := age.Encrypt(&keyslot, recipient)
	if err != nil {
		return nil, fmt.Errorf("sealing master key: %w", err)
	}
	if _, err := writer.Write(masterKey); err != nil {
		return nil, fmt.Errorf("writing master key: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing keyslot: %w", err)
	}
	return keyslot.Bytes(), nil
}

// unsealMasterKey opens the keyslot with the given passphrase. A
// passphrase that does not unseal the keyslot yields KindBadKey; a
// keyslot that unseals to the wrong length is corruption.
//
// The returned buffer is mmap-backed and must be closed by the caller.
// The passphrase buffer is borrowed, not closed.
func unsealMasterKey(keyslot []byte, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(keyslot), identity)
	if err != nil {
		return nil, &Error{Kind: KindBadKey, Detail: "passphrase does not unseal the master key", Err: err}
	}

	masterKey := make([]byte, MasterKeySize+1)
	read, err := io.ReadFull(reader, masterKey[:MasterKeySize])
	if err != nil {
		return nil, &Error{Kind: KindBadKey, Detail: "passphrase does not unseal the master key", Err: err}
	}
	// Exactly MasterKeySize bytes must remain.
	if extra, _ := reader.Read(masterKey[MasterKeySize:]); extra != 0 || read != MasterKeySize {
		secret.Zero(masterKey)
		return nil, Corruptf("keyslot payload is not a %d-byte master key", MasterKeySize)
	}

	// NewFromBytes zeros masterKey.
	return secret.NewFromBytes(masterKey[:MasterKeySize])
}

// deriveKey derives one 32-byte subkey from the master key via
// HKDF-SHA256 with the given info string. The caller must zero the
// returned slice when done.
func deriveKey(masterKey *secret.Buffer, info string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, masterKey.Bytes(), nil, []byte(info))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", info, err)
	}
	return key, nil
}

// encryptBlock encrypts plaintext with XChaCha20-Poly1305 under key,
// producing nonce || ciphertext.
func encryptBlock(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	out := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out[:chacha20poly1305.NonceSizeX]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(out, out[:chacha20poly1305.NonceSizeX], plaintext, nil), nil
}

// decryptBlock opens a nonce || ciphertext block produced by
// encryptBlock. Authentication failure after a successful keyslot
// unseal means the ciphertext was altered, so it reports corruption,
// not a bad key.
func decryptBlock(key, stored []byte) ([]byte, error) {
	if len(stored) < encryptedBlockOverhead {
		return nil, Corruptf("encrypted block too short: %d bytes", len(stored))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	nonce := stored[:chacha20poly1305.NonceSizeX]
	ciphertext := stored[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &Error{Kind: KindCorrupt, Detail: "encrypted block failed authentication", Err: err}
	}
	return plaintext, nil
}
