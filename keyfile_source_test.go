// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileKeySourcePlainPassthrough(t *testing.T) {
	key, err := LoadFileKeySource(bin32Key)
	require.NoError(t, err)
	assert.Equal(t, FormatBin32, key.Format())
}

func TestLoadFileKeySourceCFBWithoutStream(t *testing.T) {
	raw := append(append([]byte{}, oleIdentifier...), make([]byte, 512-len(oleIdentifier))...)
	_, err := LoadFileKeySource(raw)
	require.Error(t, err)

	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindKeyFileParse, kerr.Kind)
}
