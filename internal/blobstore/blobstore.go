// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blobstore content-addresses externalized turn input on disk, for
// use as the contextbudget.Assembler's ContentWriter. Blobs are keyed by
// sha256 of their content and zstd-compressed past a size threshold. A flat
// on-disk directory suffices: externalized blobs outlive a single process
// and don't need namespaces or watchers.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// CompressionThreshold is the minimum blob size in bytes before zstd
// compression is applied.
const CompressionThreshold = 1024

const compressedSuffix = ".zst"

// Store is a content-addressed blob store rooted at one directory. Blobs
// are identified by the hex sha256 of their uncompressed content, so Put is
// idempotent: storing the same bytes twice returns the same id without a
// second write.
type Store struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

// New returns a Store rooted at root, creating it if absent.
func New(root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %q: %w", root, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("new zstd decoder: %w", err)
	}
	return &Store{root: root, encoder: enc, decoder: dec, logger: logger}, nil
}

// Close releases the store's zstd encoder/decoder goroutines.
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// Put stores blob and returns its content id. Blobs at or above
// CompressionThreshold are zstd-compressed on disk; smaller blobs are
// stored raw to avoid compression overhead dwarfing the payload.
func (s *Store) Put(blob []byte) (string, error) {
	sum := sha256.Sum256(blob)
	id := hex.EncodeToString(sum[:])

	if _, err := os.Stat(s.rawPath(id)); err == nil {
		return id, nil
	}
	if _, err := os.Stat(s.compressedPath(id)); err == nil {
		return id, nil
	}

	path := s.rawPath(id)
	payload := blob
	if len(blob) >= CompressionThreshold {
		path = s.compressedPath(id)
		payload = s.encoder.EncodeAll(blob, nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write blob %q: %w", id, err)
	}
	s.logger.Debug("blob stored", zap.String("id", id), zap.Int("bytes", len(blob)), zap.Bool("compressed", path == s.compressedPath(id)))
	return id, nil
}

// Get returns the blob previously stored under id.
func (s *Store) Get(id string) ([]byte, error) {
	if data, err := os.ReadFile(s.rawPath(id)); err == nil {
		return data, nil
	}
	data, err := os.ReadFile(s.compressedPath(id))
	if err != nil {
		return nil, fmt.Errorf("blob %q not found: %w", id, err)
	}
	decoded, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress blob %q: %w", id, err)
	}
	return decoded, nil
}

func (s *Store) rawPath(id string) string {
	return filepath.Join(s.root, id[:2], id)
}

func (s *Store) compressedPath(id string) string {
	return filepath.Join(s.root, id[:2], id+compressedSuffix)
}
