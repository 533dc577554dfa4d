// Package ir provides the canonical value representation used for escrow
// event payloads.
//
// Event payloads are stored and hashed as canonical JSON (RFC 8785). This
// package has no internal imports; engine, store and harness all build on it.
//
// Key design constraints:
//   - NO float types anywhere - amounts travel as decimal strings, heights as int64
//   - Object keys are ordered by UTF-16 code units when serialized
//   - Strings are NFC normalized at the serialization boundary
package ir
