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
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mem, err := NewMemoryTier(1 << 20)
	if err != nil {
		t.Fatalf("NewMemoryTier: %v", err)
	}
	disk, err := NewDiskTier(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskTier: %v", err)
	}
	return NewStore(mem, disk)
}

func TestStorePutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	obj := Object{Meta0: []byte("Hello"), Meta1: []byte("World"), Body: []byte("Hello World!")}
	if err := s.Put("k", obj); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.memory.Wait()

	got, ok := s.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(got.Body) != "Hello World!" {
		t.Fatalf("got body %q", got.Body)
	}
}

func TestStoreSurvivesRestartViaDiskTier(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := NewMemoryTier(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	s1 := NewStore(mem, disk)
	obj := Object{Meta0: []byte("m0"), Meta1: []byte("m1"), Body: []byte("body")}
	if err := s1.Put("k", obj); err != nil {
		t.Fatal(err)
	}

	// simulate a process restart: fresh memory tier, same disk directory.
	freshMem, err := NewMemoryTier(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	freshDisk, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}
	s2 := NewStore(freshMem, freshDisk)
	got, ok := s2.Get("k")
	if !ok || string(got.Body) != "body" {
		t.Fatalf("expected object to survive restart, got %+v ok=%v", got, ok)
	}

	s2.Remove("k")
	if _, ok := s2.Get("k"); ok {
		t.Fatal("expected no object after remove")
	}
}

func TestHitHandleSeekRange(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("k", Object{Body: []byte("Hello World!")}); err != nil {
		t.Fatal(err)
	}
	s.memory.Wait()

	_, handle, ok := s.Lookup("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(handle.Bytes()) != "Hello World!" {
		t.Fatalf("expected full body before seeking, got %q", handle.Bytes())
	}

	end := 11
	if err := handle.Seek(1, &end); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if string(handle.Bytes()) != "ello World" {
		t.Fatalf("got %q", handle.Bytes())
	}

	if err := handle.Seek(12, nil); err == nil {
		t.Fatal("expected seek start at body length to fail")
	}
}

func TestMissHandlerFinishPersists(t *testing.T) {
	s := newTestStore(t)
	h := s.GetMissHandler("k", Meta{Meta0: []byte("m0")})
	_, _ = h.Write([]byte("hello "))
	_, _ = h.Write([]byte("world"))
	if err := h.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	s.memory.Wait()

	got, ok := s.Get("k")
	if !ok || string(got.Body) != "hello world" {
		t.Fatalf("unexpected object: %+v ok=%v", got, ok)
	}
}

func TestMissHandlerDiscardDoesNotPoisonCache(t *testing.T) {
	s := newTestStore(t)
	h := s.GetMissHandler("k", Meta{})
	_, _ = h.Write([]byte("partial"))
	h.Discard()

	if _, ok := s.Get("k"); ok {
		t.Fatal("a discarded miss handler must not populate the cache")
	}
}

func TestPurgeReportsWhetherSomethingWasRemoved(t *testing.T) {
	s := newTestStore(t)
	if s.Purge("missing") {
		t.Fatal("expected Purge on a missing key to report false")
	}
	if err := s.Put("k", Object{Body: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if !s.Purge("k") {
		t.Fatal("expected Purge on an existing key to report true")
	}
}

func TestUpdateMetaReplacesMetaOnly(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("k", Object{Meta0: []byte("old"), Body: []byte("body")}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateMeta("k", Meta{Meta0: []byte("new")}); err != nil {
		t.Fatalf("UpdateMeta: %v", err)
	}
	s.memory.Wait()

	got, ok := s.Get("k")
	if !ok || string(got.Meta0) != "new" || string(got.Body) != "body" {
		t.Fatalf("unexpected object after UpdateMeta: %+v ok=%v", got, ok)
	}
}

func TestUpdateMetaFailsWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateMeta("missing", Meta{}); err == nil {
		t.Fatal("expected an error updating meta for a missing key")
	}
}

func TestFingerprintCombinesPrimaryAndVariance(t *testing.T) {
	a := Fingerprint("/path", "gzip")
	b := Fingerprint("/path", "br")
	if a == b {
		t.Fatal("distinct variance should yield distinct fingerprints")
	}
	if Fingerprint("/path", "gzip") != a {
		t.Fatal("fingerprint must be deterministic")
	}
}
