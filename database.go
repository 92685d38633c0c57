// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import "encoding/binary"

// Version is the on-wire file format version, minor then major as they
// appear in the header (see the on-wire layout in SPEC_FULL.md section 6.1).
type Version struct {
	Major uint16
	Minor uint16
}

// Compression names the algorithm, if any, applied to the block-reassembled
// payload before XML parsing.
type Compression int

const (
	// CompressionNone means the payload is used as-is.
	CompressionNone Compression = iota
	// CompressionGZip means the payload is a gzip stream.
	CompressionGZip
)

// String implements fmt.Stringer for readable CLI/log output.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGZip:
		return "gzip"
	default:
		return "unknown"
	}
}

func compressionFromU32(v uint32) (Compression, error) {
	switch v {
	case 0:
		return CompressionNone, nil
	case 1:
		return CompressionGZip, nil
	default:
		return 0, newErr(KindUnsupportedCompressn, "unsupported compression")
	}
}

// OuterCipher names the cipher protecting the outer ciphertext. KDBX v3
// only ever carries the single "AES-128" on-wire identifier, which in
// practice selects AES-256-CBC (see the labeling caveat in SPEC_FULL.md
// section 9); CipherAES is named after the value actually used, not the
// misleading on-wire label.
type OuterCipher int

const (
	// CipherAES is the only outer cipher this decoder understands.
	CipherAES OuterCipher = iota
)

// cipherIDAES is the 16-byte cipher identifier on the wire. Despite being
// documented upstream as "AES-128", the operative behavior is AES-256-CBC;
// implementations must follow the behavior, not the label.
var cipherIDAES = [16]byte{
	0x31, 0xc1, 0xf2, 0xe6, 0xbf, 0x71, 0x43, 0x50,
	0xbe, 0x58, 0x05, 0x21, 0x6a, 0xfc, 0x5a, 0xff,
}

// String implements fmt.Stringer.
func (c OuterCipher) String() string {
	if c == CipherAES {
		return "AES-256-CBC"
	}
	return "unknown"
}

func outerCipherFromID(v []byte) (OuterCipher, error) {
	if len(v) == len(cipherIDAES) && [16]byte(v) == cipherIDAES {
		return CipherAES, nil
	}
	return 0, newErr(KindUnknownOuterCipher, "unknown cipher")
}

// InnerStreamCipher names the cipher used (outside this package's scope)
// to decrypt protected per-field values within entries.
type InnerStreamCipher int

const (
	// InnerStreamNone means no inner-stream protection.
	InnerStreamNone InnerStreamCipher = iota
	// InnerStreamSalsa20 means fields are Salsa20-protected.
	InnerStreamSalsa20
)

// String implements fmt.Stringer.
func (c InnerStreamCipher) String() string {
	switch c {
	case InnerStreamNone:
		return "none"
	case InnerStreamSalsa20:
		return "salsa20"
	default:
		return "unknown"
	}
}

func innerStreamCipherFromU32(v uint32) (InnerStreamCipher, error) {
	switch v {
	case 0:
		return InnerStreamNone, nil
	case 2:
		return InnerStreamSalsa20, nil
	default:
		return 0, newErr(KindUnsupportedInnerCiph, "unsupported inner cipher")
	}
}

// Database is the fully decoded, in-memory representation of a KDBX v3
// container. A Database owns all of its field buffers and its XML tree
// exclusively; it never aliases the reader's input buffers.
type Database struct {
	Version           Version
	Compression       Compression
	OuterCipher       OuterCipher
	MasterSeed        []byte
	TransformSeed     []byte
	TransformRounds   uint64
	EncryptionIV      []byte
	InnerStreamKey    []byte
	InnerStreamCipher InnerStreamCipher
	StreamStartBytes  []byte
	OtherHeaders      []HeaderEntry
	XMLDoc            *Element
}

func readU32LE(v []byte) (uint32, error) {
	if len(v) != 4 {
		return 0, newErr(KindMalformedIntegerHdr, "malformed u32 header")
	}
	return binary.LittleEndian.Uint32(v), nil
}

func readU64LE(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, newErr(KindMalformedIntegerHdr, "malformed u64 header")
	}
	return binary.LittleEndian.Uint64(v), nil
}

func takeCompression(hdrs *headerSet) (Compression, error) {
	v, ok := hdrs.take(HeaderCompressionFlags)
	if !ok {
		return 0, newErr(KindMissingRequiredHeader, "missing compression flags")
	}
	n, err := readU32LE(v)
	if err != nil {
		return 0, err
	}
	return compressionFromU32(n)
}

func takeOuterCipher(hdrs *headerSet) (OuterCipher, error) {
	v, ok := hdrs.take(HeaderCipherID)
	if !ok {
		return 0, newErr(KindMissingRequiredHeader, "missing outer cipher")
	}
	return outerCipherFromID(v)
}

func takeMasterSeed(hdrs *headerSet) ([]byte, error) {
	v, ok := hdrs.take(HeaderMasterSeed)
	if !ok {
		return nil, newErr(KindMissingRequiredHeader, "missing master seed")
	}
	if len(v) != 32 {
		return nil, newErr(KindInvalidMasterSeed, "invalid master seed")
	}
	return v, nil
}

func takeEncryptionIV(hdrs *headerSet) ([]byte, error) {
	v, ok := hdrs.take(HeaderEncryptionIV)
	if !ok {
		return nil, newErr(KindMissingRequiredHeader, "missing encryption iv")
	}
	return v, nil
}

func takeInnerStreamKey(hdrs *headerSet) []byte {
	v, _ := hdrs.take(HeaderProtectedStreamKey)
	return v
}

func takeInnerStreamCipher(hdrs *headerSet) (InnerStreamCipher, error) {
	v, ok := hdrs.take(HeaderInnerRandomStreamID)
	if !ok {
		return 0, newErr(KindMissingRequiredHeader, "missing inner random stream id")
	}
	n, err := readU32LE(v)
	if err != nil {
		return 0, err
	}
	return innerStreamCipherFromU32(n)
}

func takeStreamStartBytes(hdrs *headerSet) []byte {
	v, ok := hdrs.take(HeaderStreamStartBytes)
	if !ok {
		return []byte{}
	}
	return v
}

func takeTransformRounds(hdrs *headerSet) (uint64, error) {
	v, ok := hdrs.take(HeaderTransformRounds)
	if !ok {
		return 0, newErr(KindMissingRequiredHeader, "missing transform rounds")
	}
	return readU64LE(v)
}

func takeTransformSeed(hdrs *headerSet) ([]byte, error) {
	v, ok := hdrs.take(HeaderTransformSeed)
	if !ok {
		return nil, newErr(KindMissingRequiredHeader, "missing transform seed")
	}
	return v, nil
}

// assembleDatabase drains hdrs by moving out every known field, then
// packages whatever remains (including the id==0 terminator) into
// OtherHeaders.
func assembleDatabase(version Version, hdrs *headerSet) (*Database, error) {
	db := &Database{Version: version}

	var err error
	if db.Compression, err = takeCompression(hdrs); err != nil {
		return nil, err
	}
	if db.OuterCipher, err = takeOuterCipher(hdrs); err != nil {
		return nil, err
	}
	if db.EncryptionIV, err = takeEncryptionIV(hdrs); err != nil {
		return nil, err
	}
	db.InnerStreamKey = takeInnerStreamKey(hdrs)
	if db.InnerStreamCipher, err = takeInnerStreamCipher(hdrs); err != nil {
		return nil, err
	}
	if db.MasterSeed, err = takeMasterSeed(hdrs); err != nil {
		return nil, err
	}
	db.StreamStartBytes = takeStreamStartBytes(hdrs)
	if db.TransformRounds, err = takeTransformRounds(hdrs); err != nil {
		return nil, err
	}
	if db.TransformSeed, err = takeTransformSeed(hdrs); err != nil {
		return nil, err
	}

	db.OtherHeaders = hdrs.remaining()

	return db, nil
}
