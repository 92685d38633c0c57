// Copyright 2016 - 2023 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kdbx

import "encoding/xml"

// Element is a generic, verbatim XML tree node. The core never interprets
// the decrypted payload's content model (entry semantics are an external
// collaborator's concern, per spec); it only hands back a navigable tree.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []Element  `xml:",any"`
}

// Find returns the first direct child element with the given tag name, or
// nil if there is none.
func (e *Element) Find(name string) *Element {
	for i := range e.Nodes {
		if e.Nodes[i].XMLName.Local == name {
			return &e.Nodes[i]
		}
	}
	return nil
}

// Text returns the element's own character data.
func (e *Element) Text() string {
	return e.Content
}

func parseXML(data []byte) (*Element, error) {
	var root Element
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, wrapErr(KindXMLParse, "error parsing XML payload", err)
	}
	return &root, nil
}
