// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package idgen allocates opaque, time-ordered accession identifiers for
// submissions, objects, files, registrations, users and projects.
package idgen

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbase/submeta/clock"
)

// crockford is the Crockford base32 alphabet used by ULID-style
// identifiers: unambiguous, case-insensitive, no padding characters.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var encoding = base32.NewEncoding(crockford).WithPadding(base32.NoPadding)

// Generator allocates new accession identifiers. It is safe for
// concurrent use: each call produces fresh randomness and the only
// shared state is the injected clock.
type Generator struct {
	Clock clock.Clock
}

// NewGenerator returns a Generator using the real wall clock.
func NewGenerator() *Generator {
	return &Generator{Clock: clock.RealClock{}}
}

// NewAccession returns a 26-character, lexicographically sortable,
// time-ordered token: a 48-bit millisecond timestamp prefix followed by
// the first 80 bits of a random UUIDv4 (74 of them random; the UUID's
// version and variant bits fall in that range), both Crockford base32
// encoded. Identifiers are opaque to callers; only their relative
// ordering is meaningful.
func (g *Generator) NewAccession() (string, error) {
	now := g.Clock.Now()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ms := uint64(now.UnixMilli())

	var tsBytes [6]byte
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ms & 0xFF)
		ms >>= 8
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	randBytes := id[:10] // 80 bits, 74 of them random

	buf := make([]byte, 0, 16)
	buf = append(buf, tsBytes[:]...)
	buf = append(buf, randBytes...)

	token := encoding.EncodeToString(buf)
	// EncodeToString of 16 bytes yields 26 base32 characters with no
	// padding needed (16*8 = 128 bits = 25.6 symbols, rounded up to 26).
	return strings.ToUpper(token)[:26], nil
}
