// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// DiskTier is the persistent tier: a flat directory whose filenames are
// the request fingerprint, a combined primary+variance hash. Concurrent
// writers to the same key are last-write-wins; the runtime documents this
// rather than coordinating write-through.
type DiskTier struct {
	dir string
}

// NewDiskTier ensures dir exists and returns a tier rooted there.
func NewDiskTier(dir string) (*DiskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating disk tier directory: %w", err)
	}
	return &DiskTier{dir: dir}, nil
}

// Fingerprint combines a primary cache key with an optional variance
// (e.g. a Vary-derived discriminator) into the disk filename.
func Fingerprint(primary, variance string) string {
	h := xxhash.New()
	_, _ = h.WriteString(primary)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(variance)
	return fmt.Sprintf("%016x", h.Sum64())
}

func (d *DiskTier) path(fingerprint string) string {
	return filepath.Join(d.dir, fingerprint)
}

// Get reads and decodes the object for fingerprint, if present.
func (d *DiskTier) Get(fingerprint string) (Object, bool) {
	buf, err := os.ReadFile(d.path(fingerprint))
	if err != nil {
		return Object{}, false
	}
	return Decode(buf), true
}

// Put persists obj under fingerprint. Persistence errors are fatal to the
// caller: they are returned, not swallowed.
func (d *DiskTier) Put(fingerprint string, obj Object) error {
	tmp := d.path(fingerprint) + ".tmp"
	if err := os.WriteFile(tmp, Encode(obj), 0o644); err != nil {
		return fmt.Errorf("cache: writing object: %w", err)
	}
	if err := os.Rename(tmp, d.path(fingerprint)); err != nil {
		return fmt.Errorf("cache: committing object: %w", err)
	}
	return nil
}

// Remove deletes fingerprint's file, reporting whether one existed.
func (d *DiskTier) Remove(fingerprint string) bool {
	err := os.Remove(d.path(fingerprint))
	return err == nil
}
