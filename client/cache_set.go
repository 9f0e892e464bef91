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
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// cacheSet is an ordered, de-duplicated list of endpoint URLs serving one
// namespace prefix. Entries are compared by scheme+host only; the first
// entry is the preferred endpoint. Safe for concurrent use.
type cacheSet struct {
	mutex     sync.Mutex
	endpoints []*url.URL
}

// canonicalizeEndpoint reduces an endpoint URL to scheme://host:port,
// dropping any path, query, and fragment.
func canonicalizeEndpoint(endpoint *url.URL) string {
	canonical := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host}
	return canonical.String()
}

func newCacheSet(orderedUrls []*url.URL) *cacheSet {
	cs := &cacheSet{endpoints: make([]*url.URL, 0, len(orderedUrls))}
	seen := make(map[string]bool, len(orderedUrls))
	for _, endpoint := range orderedUrls {
		key := canonicalizeEndpoint(endpoint)
		if seen[key] {
			continue
		}
		seen[key] = true
		cs.endpoints = append(cs.endpoints, &url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host})
	}
	return cs
}

// preferred joins the best current endpoint with the object path.
func (cs *cacheSet) preferred(objectPath string) (*url.URL, error) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if len(cs.endpoints) == 0 {
		return nil, errors.Wrap(NoAvailableSourceErr, "all endpoints for the namespace have been marked bad")
	}
	result := *cs.endpoints[0]
	result.Path = objectPath
	return &result, nil
}

// markBad removes the endpoint from the set. A no-op when the endpoint is
// already gone; a concurrent caller may have removed it first.
func (cs *cacheSet) markBad(endpoint *url.URL) {
	key := canonicalizeEndpoint(endpoint)

	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	for idx, existing := range cs.endpoints {
		if canonicalizeEndpoint(existing) == key {
			log.Debugln("Marking endpoint as bad:", key)
			cs.endpoints = append(cs.endpoints[:idx], cs.endpoints[idx+1:]...)
			return
		}
	}
}

func (cs *cacheSet) size() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return len(cs.endpoints)
}
