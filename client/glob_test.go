/***************************************************************
 *
 * Copyright (C) 2025, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PelicanPlatform/pelicanfs/mock"
)

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		matches    []string
		mismatches []string
	}{
		{
			name:       "StarStaysInSegment",
			pattern:    "/foo/*.txt",
			matches:    []string{"/foo/bar.txt", "/foo/b.txt"},
			mismatches: []string{"/foo/sub/baz.txt", "/foo/bar.dat"},
		},
		{
			name:       "DoubleStarCrossesSegments",
			pattern:    "/foo/**.txt",
			matches:    []string{"/foo/bar.txt", "/foo/sub/baz.txt"},
			mismatches: []string{"/foo/bar.dat"},
		},
		{
			name:       "QuestionMatchesOneRune",
			pattern:    "/foo/?ar.txt",
			matches:    []string{"/foo/bar.txt", "/foo/car.txt"},
			mismatches: []string{"/foo/blar.txt", "/foo/ar.txt"},
		},
		{
			name:       "CharacterClass",
			pattern:    "/foo/[bc]ar.txt",
			matches:    []string{"/foo/bar.txt", "/foo/car.txt"},
			mismatches: []string{"/foo/far.txt"},
		},
		{
			name:       "NegatedCharacterClass",
			pattern:    "/foo/[!b]ar.txt",
			matches:    []string{"/foo/car.txt"},
			mismatches: []string{"/foo/bar.txt"},
		},
		{
			name:       "UnterminatedClassIsLiteral",
			pattern:    "/foo/[ar",
			matches:    []string{"/foo/[ar"},
			mismatches: []string{"/foo/a"},
		},
		{
			name:       "DotsAreLiteral",
			pattern:    "/foo/a.txt",
			matches:    []string{"/foo/a.txt"},
			mismatches: []string{"/foo/aXtxt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher, err := globToRegexp(tt.pattern)
			require.NoError(t, err)
			for _, candidate := range tt.matches {
				assert.True(t, matcher.MatchString(candidate), "%q should match %q", tt.pattern, candidate)
			}
			for _, candidate := range tt.mismatches {
				assert.False(t, matcher.MatchString(candidate), "%q should not match %q", tt.pattern, candidate)
			}
		})
	}
}

func TestGlobRoot(t *testing.T) {
	assert.Equal(t, "/foo", globRoot("/foo/*.txt"))
	assert.Equal(t, "/foo/sub", globRoot("/foo/sub/ba?.txt"))
	assert.Equal(t, "/", globRoot("/*"))
	assert.Equal(t, "/a/b/c", globRoot("/a/b/c"))
}

func TestGlobDepth(t *testing.T) {
	assert.Equal(t, 1, globDepth("/foo/*.txt", "/foo", -1))
	assert.Equal(t, 2, globDepth("/foo/*/baz.txt", "/foo", -1))
	assert.Equal(t, -1, globDepth("/foo/**/baz.txt", "/foo", -1))

	// A depth bound replaces the recursive wildcard's own segments
	assert.Equal(t, 1, globDepth("/foo/**", "/foo", 1))
	assert.Equal(t, 3, globDepth("/foo/**", "/foo", 3))
	assert.Equal(t, 2, globDepth("/foo/**/baz.txt", "/foo", 1))

	// Non-recursive patterns ignore the bound; the pattern fixes the depth
	assert.Equal(t, 2, globDepth("/foo/*/baz.txt", "/foo", 5))
}

func TestGlobEndToEnd(t *testing.T) {
	fed := mock.NewFederation(t, "/foo", map[string]string{
		"/foo/bar.txt":      "hello",
		"/foo/baz.dat":      "binary",
		"/foo/sub/deep.txt": "nested",
	})
	ffs := newTestFilesystem(t, fed)
	ctx := context.Background()

	t.Run("SingleSegment", func(t *testing.T) {
		matches, err := ffs.Glob(ctx, "/foo/*.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"/foo/bar.txt"}, matches)
	})

	t.Run("Recursive", func(t *testing.T) {
		matches, err := ffs.Glob(ctx, "/foo/**.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"/foo/bar.txt", "/foo/sub/deep.txt"}, matches)
	})

	t.Run("RecursiveBounded", func(t *testing.T) {
		matches, err := ffs.GlobWithDepth(ctx, "/foo/**.txt", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"/foo/bar.txt"}, matches)
	})

	t.Run("RecursiveBoundDeepEnough", func(t *testing.T) {
		matches, err := ffs.GlobWithDepth(ctx, "/foo/**.txt", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"/foo/bar.txt", "/foo/sub/deep.txt"}, matches)
	})

	t.Run("NoMatches", func(t *testing.T) {
		matches, err := ffs.Glob(ctx, "/foo/*.json")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("NoMagicExisting", func(t *testing.T) {
		matches, err := ffs.Glob(ctx, "/foo/bar.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"/foo/bar.txt"}, matches)
	})

	t.Run("NoMagicMissing", func(t *testing.T) {
		matches, err := ffs.Glob(ctx, "/foo/missing.txt")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
