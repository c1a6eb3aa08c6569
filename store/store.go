// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store implements a directory of write-once artifacts addressed by
// key.  The pipeline keeps its expensive shared artifacts (blacklists,
// sequenceability factors) in a Store so that each is derived at most once
// per key.
//
// A Store does not synchronize writers.  Exists followed by Write is a
// check-then-act sequence: two drivers that miss on the same key at the same
// time will both build the artifact, and the last Write wins.  Callers that
// run concurrent drivers against one directory must serialize per key.
package store

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Store is a directory of artifacts.
type Store struct {
	// Dir is the directory holding the artifacts. It may be a local path or
	// an S3 URL.
	Dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the path of the artifact for key.  The path is a pure
// function of the directory and the key.
func (s *Store) Path(key string) string {
	return file.Join(s.Dir, key)
}

// Exists reports whether the artifact for key has been written.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := file.Stat(ctx, s.Path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(errors.NotExist, err) || os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.E(err, "store.Exists", s.Path(key))
}

// Write creates the artifact for key with the contents produced by fill, and
// returns its path.  The artifact becomes visible under its final name only
// when fill and the close succeed, so an interrupted write never leaves a
// partial artifact that a later Exists would report.
func (s *Store) Write(ctx context.Context, key string, fill func(w io.Writer) error) (path string, err error) {
	if err = MkdirAll(s.Dir); err != nil {
		return "", err
	}
	path = s.Path(key)
	out, err := file.Create(ctx, path)
	if err != nil {
		return "", errors.E(err, "store.Write", path)
	}
	if err = fill(out.Writer(ctx)); err != nil {
		out.Discard(ctx)
		return "", errors.E(err, "store.Write", path)
	}
	if err = out.Close(ctx); err != nil {
		return "", errors.E(err, "store.Write", path)
	}
	return path, nil
}

// Remove deletes the artifact for key. It is not an error if the artifact
// does not exist.
func (s *Store) Remove(ctx context.Context, key string) error {
	err := file.Remove(ctx, s.Path(key))
	if err != nil && (errors.Is(errors.NotExist, err) || os.IsNotExist(err)) {
		return nil
	}
	return err
}

// MkdirAll creates dir and its parents when dir is a local path.  Object
// stores have no directories, so URLs are left alone.
func MkdirAll(dir string) error {
	if strings.Contains(dir, "://") {
		return nil
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.E(err, "mkdir", dir)
	}
	return nil
}
