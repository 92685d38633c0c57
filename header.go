// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import (
	"encoding/binary"
	"io"
)

// HeaderID names the type-length-value fields of the KDBX v3 header stream.
type HeaderID uint8

// The closed enumeration of header field ids.
const (
	HeaderEnd                 HeaderID = 0
	HeaderComment             HeaderID = 1
	HeaderCipherID            HeaderID = 2
	HeaderCompressionFlags    HeaderID = 3
	HeaderMasterSeed          HeaderID = 4
	HeaderTransformSeed       HeaderID = 5
	HeaderTransformRounds     HeaderID = 6
	HeaderEncryptionIV        HeaderID = 7
	HeaderProtectedStreamKey  HeaderID = 8
	HeaderStreamStartBytes    HeaderID = 9
	HeaderInnerRandomStreamID HeaderID = 10
)

// HeaderEntry is an opaque (id, value) pair retained verbatim for header
// fields the assembler does not consume.
type HeaderEntry struct {
	ID    uint8
	Value []byte
}

// headerSet is the result of decoding the TLV stream: a lookup by id plus
// the original arrival order, so residue headers can be reported in the
// order they appeared on the wire.
type headerSet struct {
	values map[uint8][]byte
	order  []uint8
}

func (h *headerSet) take(id HeaderID) ([]byte, bool) {
	v, ok := h.values[uint8(id)]
	if ok {
		delete(h.values, uint8(id))
	}
	return v, ok
}

// remaining returns the (id, value) pairs left in arrival order, including
// the terminator entry.
func (h *headerSet) remaining() []HeaderEntry {
	out := make([]HeaderEntry, 0, len(h.order))
	for _, id := range h.order {
		if v, ok := h.values[id]; ok {
			out = append(out, HeaderEntry{ID: id, Value: v})
			delete(h.values, id)
		}
	}
	return out
}

func readHeaderRecord(r io.Reader, maxValueSize int) (id uint8, value []byte, err error) {
	var idBuf [1]byte
	if _, err = io.ReadFull(r, idBuf[:]); err != nil {
		return 0, nil, wrapErr(KindIO, "error reading header id", err)
	}

	var szBuf [2]byte
	if _, err = io.ReadFull(r, szBuf[:]); err != nil {
		return 0, nil, wrapErr(KindIO, "error reading header size", err)
	}
	size := binary.LittleEndian.Uint16(szBuf[:])
	if maxValueSize > 0 && int(size) > maxValueSize {
		return 0, nil, newErr(KindHeaderParse, "header value exceeds configured maximum size")
	}

	value = make([]byte, size)
	if _, err = io.ReadFull(r, value); err != nil {
		return 0, nil, wrapErr(KindIO, "error reading header value", err)
	}

	return idBuf[0], value, nil
}

// parseHeaders reads TLV records until the id==0 terminator is consumed.
// Duplicate non-terminator ids are rejected.
func parseHeaders(r io.Reader, maxValueSize int) (*headerSet, error) {
	hdrs := &headerSet{values: make(map[uint8][]byte)}

	for {
		id, value, err := readHeaderRecord(r, maxValueSize)
		if err != nil {
			return nil, err
		}

		if _, dup := hdrs.values[id]; dup {
			return nil, newErr(KindDuplicateHeader, "duplicate header")
		}

		hdrs.values[id] = value
		hdrs.order = append(hdrs.order, id)

		if id == uint8(HeaderEnd) {
			break
		}
	}

	return hdrs, nil
}
