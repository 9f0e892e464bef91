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

package pelican_url

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Spin up a discovery server for testing purposes
func getTestDiscoveryServer(t *testing.T) *httptest.Server {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PelicanDiscoveryPath {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte(`{
				"director_endpoint": "https://director.com",
				"namespace_registration_endpoint": "https://registration.com",
				"jwks_uri": "https://tokens.com"
			}`))
			assert.NoError(t, err)
		} else {
			http.NotFound(w, r)
		}
	}
	server := httptest.NewTLSServer(http.HandlerFunc(handler))
	return server
}

func getTestClient() *http.Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &http.Client{Transport: tr}
}

func TestDiscoverFederation(t *testing.T) {
	discServer := getTestDiscoveryServer(t)
	defer discServer.Close()
	discUrl, err := url.Parse(discServer.URL)
	require.NoError(t, err)

	t.Run("TestVanilla", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fedInfo, err := DiscoverFederation(ctx, getTestClient(), "test-ua", discUrl)
		require.NoError(t, err)

		assert.Equal(t, "https://director.com", fedInfo.DirectorEndpoint, "Unexpected DirectorEndpoint")
		assert.Equal(t, "https://registration.com", fedInfo.RegistryEndpoint, "Unexpected RegistryEndpoint")
		assert.Equal(t, "https://tokens.com", fedInfo.JwksUri, "Unexpected JwksUri")
	})

	t.Run("TestNotFound", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()
		badUrl, err := url.Parse(server.URL)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err = DiscoverFederation(ctx, getTestClient(), "test-ua", badUrl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid metadata response")
	})

	t.Run("TestMissingDirector", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte(`{"jwks_uri": "https://tokens.com"}`))
			assert.NoError(t, err)
		}))
		defer server.Close()
		badUrl, err := url.Parse(server.URL)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err = DiscoverFederation(ctx, getTestClient(), "test-ua", badUrl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "director endpoint")
	})

	t.Run("TestBadJson", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte(`not json at all`))
			assert.NoError(t, err)
		}))
		defer server.Close()
		badUrl, err := url.Parse(server.URL)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err = DiscoverFederation(ctx, getTestClient(), "test-ua", badUrl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid metadata response")
	})
}

func TestPopulateFedInfo(t *testing.T) {
	discServer := getTestDiscoveryServer(t)
	defer discServer.Close()
	discUrl, err := url.Parse(discServer.URL)
	require.NoError(t, err)

	pUrl, err := Parse("pelican://" + discUrl.Host + "/foo/bar")
	require.NoError(t, err)

	err = pUrl.PopulateFedInfo(WithClient(getTestClient()), WithContext(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "https://director.com", pUrl.FedInfo.DirectorEndpoint)
}

func TestMetadataErrIs(t *testing.T) {
	wrapped := MetadataTimeoutErr.Wrap(assert.AnError)
	assert.ErrorIs(t, wrapped, MetadataTimeoutErr)

	other := NewMetadataError(assert.AnError, "Invalid metadata response")
	assert.NotErrorIs(t, other, MetadataTimeoutErr)
}
