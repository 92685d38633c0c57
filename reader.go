// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"io"
)

var (
	sig1 = [4]byte{0x03, 0xD9, 0xA2, 0x9A}
	sig2 = [4]byte{0x67, 0xFB, 0x4B, 0xB5}
)

// Reader decodes a KDBX v3 container using a caller-constructed composite
// key. It is single-threaded and non-suspending: a Reader owns its
// composite key's mutable digest state and must not be shared across
// goroutines reading concurrently (see SPEC_FULL.md section 5).
type Reader struct {
	key *CompositeKey
	cfg readerConfig
}

// NewReader builds a Reader around key, applying any ReaderOptions.
func NewReader(key *CompositeKey, opts ...ReaderOption) *Reader {
	cfg := defaultReaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reader{key: key, cfg: cfg}
}

func parseSig1(r io.Reader) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return wrapErr(KindIO, "error reading signature", err)
	}
	if buf != sig1 {
		return newErr(KindSignatureMismatch, "sig1 not found")
	}
	return nil
}

func parseSig2(r io.Reader) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return wrapErr(KindIO, "error reading signature", err)
	}
	if buf != sig2 {
		return newErr(KindSignatureMismatch, "sig2 not found or unsupported version")
	}
	return nil
}

func parseVersion(r io.Reader) (Version, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Version{}, wrapErr(KindIO, "error reading version", err)
	}
	return Version{
		Minor: binary.LittleEndian.Uint16(buf[0:2]),
		Major: binary.LittleEndian.Uint16(buf[2:4]),
	}, nil
}

// ReadFrom decodes a full KDBX v3 container from r: signatures, version,
// headers, then the cryptographic unseal of the outer ciphertext. Any step
// failing aborts the whole read; there is no partial Database on error.
func (rd *Reader) ReadFrom(r io.Reader) (*Database, error) {
	if err := parseSig1(r); err != nil {
		return nil, err
	}
	if err := parseSig2(r); err != nil {
		return nil, err
	}

	version, err := parseVersion(r)
	if err != nil {
		return nil, err
	}

	hdrs, err := parseHeaders(r, rd.cfg.maxHeaderValueSize)
	if err != nil {
		return nil, err
	}

	db, err := assembleDatabase(version, hdrs)
	if err != nil {
		return nil, err
	}

	doc, err := rd.unseal(db, r)
	if err != nil {
		return nil, err
	}
	db.XMLDoc = doc

	return db, nil
}

// unseal performs the full cryptographic pipeline of SPEC_FULL.md section
// 4.6: key transformation, master-key derivation, outer CBC decryption,
// the stream-start sanity gate, block reassembly with per-block integrity
// checks, optional decompression, and XML parsing.
func (rd *Reader) unseal(db *Database, r io.Reader) (*Element, error) {
	transformed, err := rd.key.Transform(db.TransformRounds, db.TransformSeed)
	if err != nil {
		return nil, err
	}

	masterHash := sha256.New()
	masterHash.Write(db.MasterSeed)
	masterHash.Write(transformed)
	masterKey := masterHash.Sum(nil)

	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapErr(KindIO, "error reading ciphertext", err)
	}

	plaintext, err := decryptOuter(masterKey, db.EncryptionIV, ciphertext)
	if err != nil {
		return nil, err
	}

	plaintext = trimStreamStart(plaintext, db.StreamStartBytes)

	assembled, err := reassembleBlocks(bytes.NewReader(plaintext))
	if err != nil {
		return nil, err
	}

	payload := assembled
	if db.Compression == CompressionGZip {
		payload, err = gunzip(assembled)
		if err != nil {
			return nil, err
		}
	}

	return parseXML(payload)
}

// decryptOuter decrypts ciphertext with AES-256-CBC under masterKey/iv and
// strips PKCS#7 padding.
func decryptOuter(masterKey, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, wrapErr(KindDecryptionFailure, "error building outer cipher", err)
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, newErr(KindDecryptionFailure, "ciphertext is not a multiple of the block size")
	}

	mode := cipher.NewCBCDecrypter(block, iv)
	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	return unpadPKCS7(plaintext)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, newErr(KindDecryptionFailure, "empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, newErr(KindDecryptionFailure, "invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, newErr(KindDecryptionFailure, "invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// trimStreamStart discards the known plaintext prefix when present. A
// mismatch is not reported here; it is a fast-path sanity gate only. Wrong
// credentials usually surface earlier, as KindDecryptionFailure from the
// padding check in decryptOuter, and otherwise in the following block
// reassembly step.
func trimStreamStart(plaintext, start []byte) []byte {
	if len(start) == 0 || len(plaintext) < len(start) {
		return plaintext
	}
	if bytes.Equal(plaintext[:len(start)], start) {
		return plaintext[len(start):]
	}
	return plaintext
}

// reassembleBlocks consumes the length-prefixed, hash-verified block
// stream described in SPEC_FULL.md section 6.2 and returns the
// concatenated block data.
func reassembleBlocks(r io.Reader) ([]byte, error) {
	var out bytes.Buffer

	for {
		var indexBuf [4]byte
		if _, err := io.ReadFull(r, indexBuf[:]); err != nil {
			return nil, wrapErr(KindIO, "error reading block index", err)
		}
		// block_index is read and discarded; it is not cryptographically
		// validated (SPEC_FULL.md section 9).

		var hash [32]byte
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, wrapErr(KindIO, "error reading block hash", err)
		}

		var sizeBuf [4]byte
		if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
			return nil, wrapErr(KindIO, "error reading block size", err)
		}
		size := binary.LittleEndian.Uint32(sizeBuf[:])

		if size == 0 {
			break
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, wrapErr(KindIO, "error reading block data", err)
		}

		if sha256.Sum256(data) != hash {
			return nil, newErr(KindBlockHashMismatch, "block hash mismatch")
		}

		out.Write(data)
	}

	return out.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, wrapErr(KindIO, "error opening gzip stream", err)
	}
	defer gz.Close()

	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, wrapErr(KindIO, "error decompressing gzip stream", err)
	}
	return out, nil
}
