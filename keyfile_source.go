// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import (
	"bytes"

	"github.com/richardlehane/mscfb"
)

// oleIdentifier is the compound-file-binary (OLE2) magic number. A handful
// of third-party KeePass key-file generators wrap the actual key material
// (one of the three formats in SPEC_FULL.md section 6.3) inside a CFB
// container as a named stream, the same shape Microsoft Office documents
// use for their encryption metadata.
var oleIdentifier = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// LoadFileKeySource builds a FileKey from the raw contents of a key-file
// path. It transparently unwraps a CFB/OLE2 container first, then runs the
// ordinary auto-detection of SPEC_FULL.md section 6.3 on whatever stream it
// finds (or on the original bytes, when there is no container at all).
func LoadFileKeySource(raw []byte) (*FileKey, error) {
	if !bytes.HasPrefix(raw, oleIdentifier) {
		return FileKeyFrom(raw)
	}

	data, err := extractKeyStream(raw)
	if err != nil {
		return nil, err
	}

	return FileKeyFrom(data)
}

// extractKeyStream walks a CFB container looking for the first stream
// entry, which by convention carries the actual key-file bytes. Unlike
// excelize's EncryptionInfo/EncryptedPackage pair (two named, purpose-
// specific streams), a CFB-wrapped key bundle carries exactly one relevant
// stream, so this takes the first non-storage entry it finds.
func extractKeyStream(raw []byte) ([]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(raw))
	if err != nil {
		return nil, wrapErr(KindKeyFileParse, "error opening CFB key container", err)
	}

	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size == 0 {
			continue
		}

		buf := make([]byte, entry.Size)
		if _, err := doc.Read(buf); err != nil {
			return nil, wrapErr(KindKeyFileParse, "error reading CFB key stream", err)
		}
		return buf, nil
	}

	return nil, newErr(KindKeyFileParse, "CFB key container has no streams")
}
