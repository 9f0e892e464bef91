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
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PelicanPlatform/pelicanfs/mock"
)

func TestBuildCandidates(t *testing.T) {
	directorCandidates := mustParseAll(t, "https://cache1.com:8443", "https://cache2.com:8443")

	t.Run("NoPreferred", func(t *testing.T) {
		candidates, err := buildCandidates(nil, directorCandidates)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "https://cache1.com:8443", candidates[0].String())
	})

	t.Run("PreferredWithoutSentinel", func(t *testing.T) {
		candidates, err := buildCandidates([]string{"https://mine.com:8443"}, directorCandidates)
		require.NoError(t, err)
		// Without the sentinel the director's candidates are not merged in
		require.Len(t, candidates, 1)
		assert.Equal(t, "https://mine.com:8443", candidates[0].String())
	})

	t.Run("SentinelSplice", func(t *testing.T) {
		candidates, err := buildCandidates([]string{"https://mine.com:8443", "+", "https://last.com"}, directorCandidates)
		require.NoError(t, err)
		require.Len(t, candidates, 4)
		assert.Equal(t, "https://mine.com:8443", candidates[0].String())
		assert.Equal(t, "https://cache1.com:8443", candidates[1].String())
		assert.Equal(t, "https://cache2.com:8443", candidates[2].String())
		assert.Equal(t, "https://last.com", candidates[3].String())
	})

	t.Run("SentinelSpliceDedup", func(t *testing.T) {
		candidates, err := buildCandidates([]string{"https://cache2.com:8443", "+"}, directorCandidates)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "https://cache2.com:8443", candidates[0].String())
		assert.Equal(t, "https://cache1.com:8443", candidates[1].String())
	})
}

func newTestResolver(t *testing.T, directorUrl string, preferred []string) *cacheResolver {
	nsCache := newNamespaceCache(time.Minute, 50)
	t.Cleanup(nsCache.stop)

	dc, err := newDirectorClient(directorUrl, http.DefaultTransport, "test-ua")
	require.NoError(t, err)
	return newCacheResolver(nsCache, dc, preferred, http.DefaultTransport, 2*time.Second)
}

func TestResolveEndToEnd(t *testing.T) {
	fed := mock.NewFederation(t, "/foo", map[string]string{
		"/foo/bar.txt": "hello",
		"/foo/baz.txt": "world",
	})

	resolver := newTestResolver(t, fed.DirectorServer.URL, nil)

	resolved, err := resolver.resolve(context.Background(), "/foo/bar.txt")
	require.NoError(t, err)
	assert.Equal(t, fed.ObjectServer.URL+"/foo/bar.txt", resolved.String())
	assert.Equal(t, int64(1), fed.DirectorQueries.Load())

	// A second resolution under the same namespace is served from cache
	// with zero director traffic
	resolved, err = resolver.resolve(context.Background(), "/foo/baz.txt")
	require.NoError(t, err)
	assert.Equal(t, fed.ObjectServer.URL+"/foo/baz.txt", resolved.String())
	assert.Equal(t, int64(1), fed.DirectorQueries.Load())
}

func TestResolveSkipsDeadCandidate(t *testing.T) {
	objects := map[string]string{"/foo/bar.txt": "hello"}
	liveServer := mock.NewObjectServer(t, objects, false)

	// The director advertises a dead endpoint first
	director := mock.NewDirectorServer(t, mock.DirectorOptions{
		Namespace:     "/foo",
		ObjectServers: []string{"http://127.0.0.1:1", liveServer.URL},
	}, nil)

	resolver := newTestResolver(t, director.URL, nil)

	resolved, err := resolver.resolve(context.Background(), "/foo/bar.txt")
	require.NoError(t, err)
	assert.Equal(t, liveServer.URL+"/foo/bar.txt", resolved.String())
}

func TestResolveExhaustion(t *testing.T) {
	director := mock.NewDirectorServer(t, mock.DirectorOptions{
		Namespace:     "/foo",
		ObjectServers: []string{"http://127.0.0.1:1", "http://127.0.0.1:2"},
	}, nil)

	resolver := newTestResolver(t, director.URL, nil)

	_, err := resolver.resolve(context.Background(), "/foo/bar.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, NoAvailableSourceErr)
}

func TestResolveMarkBadFailsOver(t *testing.T) {
	objects := map[string]string{"/foo/bar.txt": "hello"}
	serverA := mock.NewObjectServer(t, objects, false)
	serverB := mock.NewObjectServer(t, objects, false)

	director := mock.NewDirectorServer(t, mock.DirectorOptions{
		Namespace:     "/foo",
		ObjectServers: []string{serverA.URL, serverB.URL},
	}, nil)

	resolver := newTestResolver(t, director.URL, nil)

	first, err := resolver.resolve(context.Background(), "/foo/bar.txt")
	require.NoError(t, err)
	assert.Equal(t, serverA.URL+"/foo/bar.txt", first.String())

	resolver.markBad(first)

	second, err := resolver.resolve(context.Background(), "/foo/bar.txt")
	require.NoError(t, err)
	assert.Equal(t, serverB.URL+"/foo/bar.txt", second.String())
}

func TestResolvePreferredOnly(t *testing.T) {
	objects := map[string]string{"/foo/bar.txt": "hello"}
	preferredServer := mock.NewObjectServer(t, objects, false)

	fed := mock.NewFederation(t, "/foo", objects)

	resolver := newTestResolver(t, fed.DirectorServer.URL, []string{preferredServer.URL})

	resolved, err := resolver.resolve(context.Background(), "/foo/bar.txt")
	require.NoError(t, err)
	assert.Equal(t, preferredServer.URL+"/foo/bar.txt", resolved.String())
	// Preferred list without a sentinel never consults the director
	assert.Equal(t, int64(0), fed.DirectorQueries.Load())

	// Preferred-only entries cache under the root prefix
	assert.NotNil(t, resolver.nsCache.get("/anything/else"))
}
