// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/mohae/deepcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Of(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

var xmlKeyIn = []byte(`<?xml version="1.0" encoding="utf-8"?>
<KeyFile>
    <Meta>
        <Version>1.00</Version>
    </Meta>
    <Key>
        <Data>qBepz0xpyaDPfG0HFNRBL+LYCV54f2cwo5SLcMnxBek=</Data>
    </Key>
</KeyFile>
`)

var xmlKeyBytes = mustHex("a817a9cf4c69c9a0cf7c6d0714d4412fe2d8095e787f6730a3948b70c9f105e9")

var bin32Key = []byte{
	1, 2, 3, 4, 5, 6, 7, 8,
	9, 10, 11, 12, 13, 14, 15, 16,
	17, 18, 19, 20, 21, 22, 23, 24,
	25, 26, 27, 28, 29, 30, 31, 32,
}

var hex64KeyIn = []byte("2122232425262728292a2b2c2d2e2f303132333435363738393a3b3c3d3e3f40")
var hex64KeyBytes = mustHex("2122232425262728292a2b2c2d2e2f303132333435363738393a3b3c3d3e3f40")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestFileKeyFromXML(t *testing.T) {
	key, ok := FileKeyFromXML(xmlKeyIn)
	require.True(t, ok)
	assert.Equal(t, FormatXML, key.Format())
	assert.Equal(t, xmlKeyBytes, key.Bytes())
}

func TestFileKeyFromDetectXML(t *testing.T) {
	key, err := FileKeyFrom(xmlKeyIn)
	require.NoError(t, err)
	assert.Equal(t, FormatXML, key.Format())
	assert.Equal(t, xmlKeyBytes, key.Bytes())
}

func TestFileKeyFromBin32(t *testing.T) {
	key, ok := FileKeyFromBin32(bin32Key)
	require.True(t, ok)
	assert.Equal(t, FormatBin32, key.Format())
	assert.Equal(t, bin32Key, key.Bytes())
}

func TestFileKeyFromDetectBin32(t *testing.T) {
	key, err := FileKeyFrom(bin32Key)
	require.NoError(t, err)
	assert.Equal(t, FormatBin32, key.Format())
}

func TestFileKeyFromHex64(t *testing.T) {
	key, ok := FileKeyFromHex64(hex64KeyIn)
	require.True(t, ok)
	assert.Equal(t, FormatHex64, key.Format())
	assert.Equal(t, hex64KeyBytes, key.Bytes())
}

func TestFileKeyFromDetectHex64(t *testing.T) {
	key, err := FileKeyFrom(hex64KeyIn)
	require.NoError(t, err)
	assert.Equal(t, FormatHex64, key.Format())
}

// TestFileKeyAutoDetectPriority exercises Testable Property 6 of
// SPEC_FULL.md section 8: a well-formed XML key file is detected as XML
// because XML is tried first, and a value that is not 64 hex digits is
// rejected by the Hex64 decoder.
func TestFileKeyAutoDetectPriority(t *testing.T) {
	key, err := FileKeyFrom(xmlKeyIn)
	require.NoError(t, err)
	assert.Equal(t, FormatXML, key.Format())

	_, ok := FileKeyFromHex64([]byte("not valid hex data at all, definitely not 64 lowercase"))
	assert.False(t, ok)
}

func TestFileKeyFromDetectFailure(t *testing.T) {
	_, err := FileKeyFrom([]byte("too short"))
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindKeyFileParse, kerr.Kind)
}

func TestFileKeyBytes(t *testing.T) {
	fkey := NewFileKey(FormatBin32, bin32Key)
	assert.Equal(t, bin32Key, fkey.Bytes())
}

// TestFileKeySaveRoundTrip covers every FileKeyFormat, cloning a shared
// base key per subtest with deepcopy so mutating one case's payload never
// leaks into another.
func TestFileKeySaveRoundTrip(t *testing.T) {
	base := NewFileKey(FormatBin32, xmlKeyBytes)

	cases := []struct {
		name      string
		format    FileKeyFormat
		wantLen   int
		wantRegex *regexp.Regexp
	}{
		{"xml", FormatXML, -1, nil},
		{"bin32", FormatBin32, 32, nil},
		{"hex64", FormatHex64, 64, regexp.MustCompile(`^[0-9a-f]{64}$`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clonedBytes := deepcopy.Copy(base.Bytes()).([]byte)
			toSave := NewFileKey(tc.format, clonedBytes)

			saved := toSave.Save()
			if tc.wantLen >= 0 {
				assert.Len(t, saved, tc.wantLen)
			}
			if tc.wantRegex != nil {
				assert.Regexp(t, tc.wantRegex, string(saved))
			}

			roundTripped, err := FileKeyFrom(saved)
			require.NoError(t, err)
			assert.True(t, toSave.Equal(roundTripped))
		})
	}
}

// TestPasswordKeyNormalization covers Testable Property 5: a precomposed
// "é" (U+00E9) and the decomposed "e" + combining acute accent (U+0065
// U+0301) are different byte sequences that must derive the same key once
// run through NFC normalization.
func TestPasswordKeyNormalization(t *testing.T) {
	precomposed := NewPasswordKey("café")
	decomposed := NewPasswordKey("café")
	require.NotEqual(t, []byte("café"), []byte("café"), "fixture must use genuinely different byte sequences")
	assert.Equal(t, precomposed.Bytes(), decomposed.Bytes())
}

func TestCompositeKeyEmpty(t *testing.T) {
	ck := NewCompositeKey()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(ck.Bytes()))
}

// sha256OfHelloWorldHex64 is the 64 ASCII hex digits decoded by
// FileKeyFromHex64 into the 32-byte SHA-256 digest of "hello world".
const sha256OfHelloWorldHex64 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestCompositeKeyPushOne(t *testing.T) {
	fk, ok := FileKeyFromHex64([]byte(sha256OfHelloWorldHex64))
	require.True(t, ok)

	ck := NewCompositeKey()
	ck.Push(fk)

	assert.Equal(t, "bc62d4b80d9e36da29c16c5d4d9f11731f36052c72401a76c23c0fb5a9b74423", hex.EncodeToString(ck.Bytes()))
}

func TestCompositeKeyPushTwo(t *testing.T) {
	fk, ok := FileKeyFromHex64([]byte(sha256OfHelloWorldHex64))
	require.True(t, ok)

	ck := NewCompositeKey()
	ck.Push(fk)
	ck.Push(fk)

	assert.Equal(t, "47a8c6f8b634e4d94a9da33e182c270fe3571f1a550d20fd93735583180c3c32", hex.EncodeToString(ck.Bytes()))
}

func TestKeyTransformZeroRounds(t *testing.T) {
	pk := NewPasswordKey("hello world")
	seed := make([]byte, 32)
	out, err := pk.Transform(0, seed)
	require.NoError(t, err)

	expected := sha256Of(pk.Bytes())
	assert.Equal(t, expected, out)
}
