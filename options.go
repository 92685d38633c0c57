// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

// defaultMaxHeaderValueSize bounds a single header TLV value so a corrupt
// or hostile size field can't force an unbounded allocation before any
// cryptographic check has run.
const defaultMaxHeaderValueSize = 16 << 20 // 16 MiB

// readerConfig holds the options a Reader was constructed with.
type readerConfig struct {
	maxHeaderValueSize int
}

func defaultReaderConfig() readerConfig {
	return readerConfig{maxHeaderValueSize: defaultMaxHeaderValueSize}
}

// ReaderOption configures a Reader at construction time, following the
// functional-options idiom. The only option in this version guards header
// value sizes; it exists so callers embedding this library in a service can
// tighten the bound without forking the decoder.
type ReaderOption func(*readerConfig)

// WithMaxHeaderValueSize overrides the maximum allowed size of a single
// header TLV value, in bytes.
func WithMaxHeaderValueSize(n int) ReaderOption {
	return func(c *readerConfig) {
		c.maxHeaderValueSize = n
	}
}
