// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key is the capability shared by every value that can seed a composite key
// or be AES-transformed: a 32-byte fingerprint, and a transform operation
// that advances those bytes through the KDBX v3 key-derivation rounds.
type Key interface {
	Bytes() []byte
	Transform(rounds uint64, seed []byte) ([]byte, error)
}

// transform implements the shared AES-256-ECB self-encryption loop used by
// every Key variant: encrypt in place for rounds iterations, reusing a
// single cipher.Block, then hash the result once.
func transform(current []byte, rounds uint64, seed []byte) ([]byte, error) {
	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, wrapErr(KindDecryptionFailure, "error building transform cipher", err)
	}

	out := append([]byte(nil), current...)
	for i := uint64(0); i < rounds; i++ {
		for off := 0; off+aes.BlockSize <= len(out); off += aes.BlockSize {
			block.Encrypt(out[off:off+aes.BlockSize], out[off:off+aes.BlockSize])
		}
	}

	sum := sha256.Sum256(out)
	return sum[:], nil
}

// PasswordKey is derived from a user-supplied password string.
type PasswordKey struct {
	bytes []byte
}

// NewPasswordKey NFC-normalizes s, UTF-8 encodes it, and hashes it with
// SHA-256 to produce the 32-byte key.
func NewPasswordKey(s string) *PasswordKey {
	normalized := norm.NFC.String(s)
	sum := sha256.Sum256([]byte(normalized))
	return &PasswordKey{bytes: sum[:]}
}

// Bytes returns the 32-byte fingerprint.
func (p *PasswordKey) Bytes() []byte { return p.bytes }

// Transform runs the shared key-transformation rounds over this key's bytes.
func (p *PasswordKey) Transform(rounds uint64, seed []byte) ([]byte, error) {
	return transform(p.bytes, rounds, seed)
}

// FileKeyFormat records which on-disk encoding a FileKey was decoded from,
// so Save can round-trip it faithfully.
type FileKeyFormat int

const (
	// FormatXML is the <KeyFile> XML encoding.
	FormatXML FileKeyFormat = iota
	// FormatBin32 is a raw 32-byte file.
	FormatBin32
	// FormatHex64 is 64 ASCII hex digits.
	FormatHex64
)

// FileKey is derived from a key file's contents.
type FileKey struct {
	format FileKeyFormat
	bytes  []byte
}

// NewFileKey builds a FileKey directly from a known format and payload.
func NewFileKey(format FileKeyFormat, data []byte) *FileKey {
	return &FileKey{format: format, bytes: append([]byte(nil), data...)}
}

// Format returns the origin encoding of the key file.
func (f *FileKey) Format() FileKeyFormat { return f.format }

// Bytes returns the 32-byte fingerprint.
func (f *FileKey) Bytes() []byte { return f.bytes }

// Transform runs the shared key-transformation rounds over this key's bytes.
func (f *FileKey) Transform(rounds uint64, seed []byte) ([]byte, error) {
	return transform(f.bytes, rounds, seed)
}

// Equal reports whether two FileKeys have the same format and payload. Used
// by round-trip tests.
func (f *FileKey) Equal(other *FileKey) bool {
	if other == nil {
		return false
	}
	return f.format == other.format && bytes.Equal(f.bytes, other.bytes)
}

type keyFileXML struct {
	XMLName xml.Name `xml:"KeyFile"`
	Meta    struct {
		Version string `xml:"Version"`
	} `xml:"Meta"`
	Key struct {
		Data string `xml:"Data"`
	} `xml:"Key"`
}

// FileKeyFromXML decodes f as a <KeyFile> document. It returns ok=false
// (not an error) when f simply isn't a matching XML document, so that
// FileKeyFrom can fall through to the next format.
func FileKeyFromXML(f []byte) (key *FileKey, ok bool) {
	var doc keyFileXML
	if err := xml.Unmarshal(f, &doc); err != nil {
		return nil, false
	}

	if strings.TrimSpace(doc.Meta.Version) != "1.00" {
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(doc.Key.Data))
	if err != nil {
		return nil, false
	}

	return NewFileKey(FormatXML, data), true
}

// FileKeyFromBin32 accepts f only when it is exactly 32 raw bytes.
func FileKeyFromBin32(f []byte) (key *FileKey, ok bool) {
	if len(f) != 32 {
		return nil, false
	}
	return NewFileKey(FormatBin32, f), true
}

// FileKeyFromHex64 accepts f only when it is exactly 64 ASCII hex digits.
func FileKeyFromHex64(f []byte) (key *FileKey, ok bool) {
	if len(f) != 64 {
		return nil, false
	}
	decoded := make([]byte, 32)
	if _, err := hex.Decode(decoded, f); err != nil {
		return nil, false
	}
	return NewFileKey(FormatHex64, decoded), true
}

// FileKeyFrom auto-detects the key file format, trying XML, then Bin32,
// then Hex64, in that order, and fails with KindKeyFileParse if none match.
func FileKeyFrom(f []byte) (*FileKey, error) {
	if key, ok := FileKeyFromXML(f); ok {
		return key, nil
	}
	if key, ok := FileKeyFromBin32(f); ok {
		return key, nil
	}
	if key, ok := FileKeyFromHex64(f); ok {
		return key, nil
	}
	return nil, newErr(KindKeyFileParse, "unable to parse key file")
}

// Save re-serializes the key in its origin format, so that
// FileKeyFrom(key.Save()) reproduces an equal key.
func (f *FileKey) Save() []byte {
	switch f.format {
	case FormatXML:
		return f.saveXML()
	case FormatHex64:
		return f.saveHex64()
	default:
		return f.saveBin32()
	}
}

func (f *FileKey) saveXML() []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<KeyFile>
    <Meta>
        <Version>1.00</Version>
    </Meta>
    <Key>
        <Data>%s</Data>
    </Key>
</KeyFile>
`, base64.StdEncoding.EncodeToString(f.bytes)))
}

func (f *FileKey) saveBin32() []byte {
	return append([]byte(nil), f.bytes...)
}

func (f *FileKey) saveHex64() []byte {
	return []byte(hex.EncodeToString(f.bytes))
}

// CompositeKey chains any number of subkeys into a single 32-byte root key
// by feeding each subkey's bytes into one running SHA-256 digest. The
// current digest snapshot is cached and refreshed synchronously on Push.
type CompositeKey struct {
	hasher hash.Hash
	bytes  []byte
}

// NewCompositeKey builds an empty composite key. Its observable bytes equal
// SHA-256 of the empty string until the first Push.
func NewCompositeKey() *CompositeKey {
	h := sha256.New()
	return &CompositeKey{hasher: h, bytes: h.Sum(nil)}
}

// Push extends the running digest with subkey's bytes and refreshes the
// cached snapshot.
func (c *CompositeKey) Push(subkey Key) {
	c.hasher.Write(subkey.Bytes())
	c.bytes = c.hasher.Sum(nil)
}

// Bytes returns the current 32-byte digest snapshot.
func (c *CompositeKey) Bytes() []byte { return c.bytes }

// Transform runs the shared key-transformation rounds over the composite's
// current bytes.
func (c *CompositeKey) Transform(rounds uint64, seed []byte) ([]byte, error) {
	return transform(c.bytes, rounds, seed)
}
