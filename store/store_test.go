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
package store_test

import (
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnvpipe/store"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestStore(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	s := store.New(filepath.Join(tmpdir, "nested", "cache"))
	expect.EQ(t, s.Path("a.txt"), filepath.Join(tmpdir, "nested", "cache", "a.txt"))

	ok, err := s.Exists(ctx, "a.txt")
	assert.NoError(t, err)
	expect.False(t, ok)

	path, err := s.Write(ctx, "a.txt", func(w io.Writer) error {
		_, err := io.WriteString(w, "hello\n")
		return err
	})
	assert.NoError(t, err)
	expect.EQ(t, path, s.Path("a.txt"))
	ok, err = s.Exists(ctx, "a.txt")
	assert.NoError(t, err)
	expect.True(t, ok)
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	expect.EQ(t, string(data), "hello\n")

	assert.NoError(t, s.Remove(ctx, "a.txt"))
	assert.NoError(t, s.Remove(ctx, "a.txt"))
	ok, err = s.Exists(ctx, "a.txt")
	assert.NoError(t, err)
	expect.False(t, ok)
}

func TestStoreFailedWriteLeavesNoArtifact(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	s := store.New(tmpdir)
	_, err := s.Write(ctx, "b.txt", func(w io.Writer) error {
		if _, err := io.WriteString(w, "partial"); err != nil {
			return err
		}
		return fmt.Errorf("coverage failed")
	})
	expect.NotNil(t, err)
	ok, err := s.Exists(ctx, "b.txt")
	assert.NoError(t, err)
	expect.False(t, ok)
}
