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

//
// Create mockups of the federation web services
//
// Allows unit tests to run without connecting to a real federation:
// a discovery endpoint, a director, and an object server backed by an
// in-memory object map.
//

package mock

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type (
	// DirectorOptions controls the headers the mock director hands out.
	DirectorOptions struct {
		Namespace     string
		RequireToken  bool
		Issuers       []string
		ObjectServers []string
	}

	// Federation bundles the three mock services a client test needs.
	Federation struct {
		DiscoveryServer *httptest.Server
		DirectorServer  *httptest.Server
		ObjectServer    *httptest.Server

		// Number of queries the director has served
		DirectorQueries atomic.Int64
	}
)

// NewDiscoveryServer serves a pelican-configuration document pointing at
// the given director endpoint.
func NewDiscoveryServer(t *testing.T, directorEndpoint string) *httptest.Server {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/pelican-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, err := fmt.Fprintf(w, `{"director_endpoint": %q}`, directorEndpoint)
		assert.NoError(t, err)
	}))
	t.Cleanup(server.Close)
	return server
}

// NewDirectorServer answers object and listing queries with metalink Link
// headers and the X-Pelican-* namespace headers, and origin queries with
// a Location header pointing at the first object server.
func NewDirectorServer(t *testing.T, opts DirectorOptions, queries *atomic.Int64) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if queries != nil {
			queries.Add(1)
		}

		nsHeader := fmt.Sprintf("namespace=%s, require-token=%t", opts.Namespace, opts.RequireToken)
		w.Header().Set("X-Pelican-Namespace", nsHeader)
		if len(opts.Issuers) > 0 {
			issuers := make([]string, 0, len(opts.Issuers))
			for _, issuer := range opts.Issuers {
				issuers = append(issuers, "issuer="+issuer)
			}
			w.Header().Set("X-Pelican-Authorization", strings.Join(issuers, ", "))
			w.Header().Set("X-Pelican-Token-Generation",
				fmt.Sprintf("issuer=%s, max-scope-depth=3, strategy=OAuth2", opts.Issuers[0]))
		}

		links := make([]string, 0, len(opts.ObjectServers))
		for idx, objectServer := range opts.ObjectServers {
			links = append(links, fmt.Sprintf(`<%s>; rel="duplicate"; pri=%d`, objectServer, idx+1))
		}
		if len(links) > 0 {
			w.Header().Set("Link", strings.Join(links, ", "))
		}

		if strings.HasPrefix(r.URL.Path, "/api/v1.0/director/origin/") && len(opts.ObjectServers) > 0 {
			objectPath := strings.TrimPrefix(r.URL.Path, "/api/v1.0/director/origin")
			w.Header().Set("Location", opts.ObjectServers[0]+objectPath)
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}

		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	t.Cleanup(server.Close)
	return server
}

// NewObjectServer serves the given objects over GET/HEAD and answers
// PROPFIND listing queries with a WebDAV multistatus document derived
// from the object paths. When requireToken is set, requests without a
// bearer token get a 403.
func NewObjectServer(t *testing.T, objects map[string]string, requireToken bool) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requireToken && !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		switch r.Method {
		case http.MethodHead, http.MethodGet:
			contents, ok := objects[r.URL.Path]
			if !ok {
				if isCollection(objects, r.URL.Path) {
					w.WriteHeader(http.StatusOK)
					return
				}
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(contents)))
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, err := w.Write([]byte(contents))
				assert.NoError(t, err)
			}
		case "PROPFIND":
			body, ok := multistatusFor(objects, r.URL.Path)
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/xml; charset=utf-8")
			w.WriteHeader(http.StatusMultiStatus)
			_, err := w.Write([]byte(body))
			assert.NoError(t, err)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// isCollection reports whether the path is an ancestor of any object.
func isCollection(objects map[string]string, dirPath string) bool {
	prefix := strings.TrimSuffix(dirPath, "/") + "/"
	for objectPath := range objects {
		if strings.HasPrefix(objectPath, prefix) {
			return true
		}
	}
	return dirPath == "/"
}

// multistatusFor builds a Depth-1 WebDAV multistatus response for the
// collection, deriving immediate children from the object map.
func multistatusFor(objects map[string]string, dirPath string) (string, bool) {
	dirPath = strings.TrimSuffix(dirPath, "/")
	if dirPath == "" {
		dirPath = "/"
	}
	if _, isObject := objects[dirPath]; !isObject && !isCollection(objects, dirPath) {
		return "", false
	}

	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="utf-8"?><D:multistatus xmlns:D="DAV:">`)

	writeResponse := func(href string, size int, collection bool) {
		builder.WriteString("<D:response><D:href>")
		builder.WriteString(href)
		builder.WriteString("</D:href><D:propstat><D:prop>")
		if collection {
			builder.WriteString("<D:resourcetype><D:collection/></D:resourcetype>")
		} else {
			builder.WriteString("<D:resourcetype/>")
			builder.WriteString(fmt.Sprintf("<D:getcontentlength>%d</D:getcontentlength>", size))
		}
		builder.WriteString("<D:getlastmodified>Mon, 02 Jan 2006 15:04:05 GMT</D:getlastmodified>")
		builder.WriteString("</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>")
	}

	if contents, isObject := objects[dirPath]; isObject {
		writeResponse(dirPath, len(contents), false)
		builder.WriteString("</D:multistatus>")
		return builder.String(), true
	}

	writeResponse(dirPath+"/", 0, true)

	prefix := dirPath
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	children := map[string]bool{} // name -> isCollection
	childSizes := map[string]int{}
	for objectPath, contents := range objects {
		if !strings.HasPrefix(objectPath, prefix) {
			continue
		}
		remainder := strings.TrimPrefix(objectPath, prefix)
		if remainder == "" {
			continue
		}
		if idx := strings.Index(remainder, "/"); idx >= 0 {
			children[remainder[:idx]] = true
		} else {
			children[remainder] = false
			childSizes[remainder] = len(contents)
		}
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childPath := path.Join(dirPath, name)
		if children[name] {
			writeResponse(childPath+"/", 0, true)
		} else {
			writeResponse(childPath, childSizes[name], false)
		}
	}

	builder.WriteString("</D:multistatus>")
	return builder.String(), true
}

// NewFederation assembles a discovery server, a director, and an object
// server into one mock federation serving the given objects.
func NewFederation(t *testing.T, namespace string, objects map[string]string) *Federation {
	fed := &Federation{}
	fed.ObjectServer = NewObjectServer(t, objects, false)
	fed.DirectorServer = NewDirectorServer(t, DirectorOptions{
		Namespace:     namespace,
		ObjectServers: []string{fed.ObjectServer.URL},
	}, &fed.DirectorQueries)
	fed.DiscoveryServer = NewDiscoveryServer(t, fed.DirectorServer.URL)
	return fed
}

// DiscoveryHost returns the host:port of the federation's discovery
// endpoint, usable as a pelican:// federation host.
func (fed *Federation) DiscoveryHost() string {
	return strings.TrimPrefix(fed.DiscoveryServer.URL, "https://")
}
