// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration used for on-disk build
// records such as the build manifest.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same module set therefore always produces the same manifest bytes,
// apart from the fields that are meant to differ (build ID, time).
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Types serialized only as CBOR use `cbor` struct tags. Types that are
// also printed as JSON by the CLI use `json` tags, which fxamacker/cbor
// reads when no `cbor` tag is present. A field never carries both.
package codec
