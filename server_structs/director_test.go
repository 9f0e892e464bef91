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

package server_structs

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseWithHeaders(headers map[string][]string) *http.Response {
	hdr := http.Header{}
	for key, vals := range headers {
		for _, val := range vals {
			hdr.Add(key, val)
		}
	}
	return &http.Response{Header: hdr}
}

func TestXPelNsParsing(t *testing.T) {
	resp := responseWithHeaders(map[string][]string{
		"X-Pelican-Namespace": {"namespace=/foo/bar, require-token=true, collections-url=https://origin.com:8444"},
	})

	xPelNs := XPelNs{}
	require.NoError(t, xPelNs.ParseRawResponse(resp))
	assert.Equal(t, "/foo/bar", xPelNs.Namespace)
	assert.True(t, xPelNs.RequireToken)
	require.NotNil(t, xPelNs.CollectionsUrl)
	assert.Equal(t, "https://origin.com:8444", xPelNs.CollectionsUrl.String())

	// Missing header is an error for the namespace; it's the one header
	// the director always sends
	empty := responseWithHeaders(nil)
	err := xPelNs.ParseRawResponse(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X-Pelican-Namespace")
}

func TestXPelAuthParsing(t *testing.T) {
	resp := responseWithHeaders(map[string][]string{
		"X-Pelican-Authorization": {"issuer=https://issuer1.com, issuer=https://issuer2.com"},
	})

	xPelAuth := XPelAuth{}
	require.NoError(t, xPelAuth.ParseRawResponse(resp))
	require.Len(t, xPelAuth.Issuers, 2)
	assert.Equal(t, "https://issuer1.com", xPelAuth.Issuers[0].String())
	assert.Equal(t, "https://issuer2.com", xPelAuth.Issuers[1].String())

	// Absent header means a public namespace, not an error
	empty := responseWithHeaders(nil)
	xPelAuth = XPelAuth{}
	require.NoError(t, xPelAuth.ParseRawResponse(empty))
	assert.Empty(t, xPelAuth.Issuers)
}

func TestXPelTokGenParsing(t *testing.T) {
	resp := responseWithHeaders(map[string][]string{
		"X-Pelican-Token-Generation": {"issuer=https://issuer.com, max-scope-depth=3, strategy=OAuth2, base-path=/foo"},
	})

	xPelTokGen := XPelTokGen{}
	require.NoError(t, xPelTokGen.ParseRawResponse(resp))
	require.Len(t, xPelTokGen.Issuers, 1)
	assert.Equal(t, "https://issuer.com", xPelTokGen.Issuers[0].String())
	assert.Equal(t, uint(3), xPelTokGen.MaxScopeDepth)
	assert.Equal(t, "OAuth2", xPelTokGen.Strategy)
	assert.Equal(t, []string{"/foo"}, xPelTokGen.BasePaths)
}

func TestParseMetalink(t *testing.T) {
	t.Run("PrioritySorting", func(t *testing.T) {
		resp := responseWithHeaders(map[string][]string{
			"Link": {`<https://cache2.com:8443>; rel="duplicate"; pri=2, <https://cache1.com:8443>; rel="duplicate"; pri=1, <https://cache3.com:8443>; rel="duplicate"; pri=3`},
		})

		servers, err := ParseMetalink(resp)
		require.NoError(t, err)
		require.Len(t, servers, 3)
		assert.Equal(t, "https://cache1.com:8443", servers[0].String())
		assert.Equal(t, "https://cache2.com:8443", servers[1].String())
		assert.Equal(t, "https://cache3.com:8443", servers[2].String())
	})

	t.Run("NoLinkHeader", func(t *testing.T) {
		servers, err := ParseMetalink(responseWithHeaders(nil))
		require.NoError(t, err)
		assert.Empty(t, servers)
	})
}

func TestParseDirectorResponse(t *testing.T) {
	resp := responseWithHeaders(map[string][]string{
		"Link":                       {`<https://cache.com:8443>; rel="duplicate"; pri=1`},
		"Location":                   {"https://cache.com:8443/foo/bar"},
		"X-Pelican-Namespace":        {"namespace=/foo, require-token=true"},
		"X-Pelican-Authorization":    {"issuer=https://issuer.com"},
		"X-Pelican-Token-Generation": {"issuer=https://issuer.com, max-scope-depth=2, strategy=OAuth2"},
	})

	dirResp, err := ParseDirectorResponse(resp)
	require.NoError(t, err)
	require.Len(t, dirResp.ObjectServers, 1)
	assert.Equal(t, "https://cache.com:8443", dirResp.ObjectServers[0].String())
	require.NotNil(t, dirResp.Location)
	assert.Equal(t, "https://cache.com:8443/foo/bar", dirResp.Location.String())
	assert.Equal(t, "/foo", dirResp.XPelNsHdr.Namespace)
	assert.True(t, dirResp.XPelNsHdr.RequireToken)
	require.Len(t, dirResp.XPelAuthHdr.Issuers, 1)
	assert.Equal(t, uint(2), dirResp.XPelTokGenHdr.MaxScopeDepth)
}
