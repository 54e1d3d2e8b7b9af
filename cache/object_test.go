// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	obj := Object{Meta0: []byte("Hello"), Meta1: []byte("World"), Body: []byte("Hello World!")}
	got := Decode(Encode(obj))
	if !bytes.Equal(got.Meta0, obj.Meta0) || !bytes.Equal(got.Meta1, obj.Meta1) || !bytes.Equal(got.Body, obj.Body) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, obj)
	}
}

func TestEncodeDecodeEmptyObject(t *testing.T) {
	obj := Object{}
	got := Decode(Encode(obj))
	if len(got.Meta0) != 0 || len(got.Meta1) != 0 || len(got.Body) != 0 {
		t.Fatalf("expected all-empty object, got %+v", got)
	}
}

func TestDecodeTruncatedBufferDefaults(t *testing.T) {
	for _, n := range []int{0, 1, 4, 7} {
		got := Decode(make([]byte, n))
		if len(got.Meta0) != 0 || len(got.Meta1) != 0 || len(got.Body) != 0 {
			t.Fatalf("buffer of length %d should decode to the defaulted object, got %+v", n, got)
		}
	}
}

func TestWeightHeuristic(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{0, 4},
		{50*1024 - 1, 4},
		{50 * 1024, 2},
		{500*1024 - 1, 2},
		{500 * 1024, 1},
	}
	for _, tc := range tests {
		if got := Weight(make([]byte, tc.size)); got != tc.want {
			t.Fatalf("Weight(%d bytes) = %d, want %d", tc.size, got, tc.want)
		}
	}
}
