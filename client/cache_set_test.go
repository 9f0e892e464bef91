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
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseAll(t *testing.T, rawUrls ...string) []*url.URL {
	parsed := make([]*url.URL, 0, len(rawUrls))
	for _, raw := range rawUrls {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		parsed = append(parsed, u)
	}
	return parsed
}

func TestCacheSetDeduplication(t *testing.T) {
	// Duplicates differing only in path/query collapse to one entry,
	// preserving first-seen order
	cs := newCacheSet(mustParseAll(t,
		"https://cache1.com:8443/some/path",
		"https://cache2.com:8443",
		"https://cache1.com:8443?query=1",
		"https://cache2.com:8443/other",
	))
	assert.Equal(t, 2, cs.size())

	preferred, err := cs.preferred("/foo/bar")
	require.NoError(t, err)
	assert.Equal(t, "https://cache1.com:8443/foo/bar", preferred.String())
}

func TestCacheSetPreferredEmpty(t *testing.T) {
	cs := newCacheSet(nil)
	_, err := cs.preferred("/foo")
	require.Error(t, err)
	assert.ErrorIs(t, err, NoAvailableSourceErr)
}

func TestCacheSetMarkBad(t *testing.T) {
	cs := newCacheSet(mustParseAll(t, "https://cache1.com:8443", "https://cache2.com:8443"))

	bad := mustParseAll(t, "https://cache1.com:8443/object/path")[0]
	cs.markBad(bad)

	preferred, err := cs.preferred("/foo")
	require.NoError(t, err)
	assert.Equal(t, "https://cache2.com:8443/foo", preferred.String())

	// Removing an absent endpoint is a no-op, not an error
	cs.markBad(bad)
	assert.Equal(t, 1, cs.size())

	// Exhausting the set makes preferred fail
	cs.markBad(mustParseAll(t, "https://cache2.com:8443")[0])
	_, err = cs.preferred("/foo")
	assert.ErrorIs(t, err, NoAvailableSourceErr)
}
