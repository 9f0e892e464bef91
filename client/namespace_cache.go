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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// namespaceCache maps a namespace prefix to the cacheSet currently known
// to serve it. Entries carry a fixed TTL and the cache is capped with
// LRU eviction beyond capacity. Lookup is a longest-prefix match.
//
// A single mutex guards the prefix scan so no caller observes a
// partially updated entry; the underlying ttlcache handles expiry and
// eviction bookkeeping.
type namespaceCache struct {
	mutex    sync.Mutex
	cache    *ttlcache.Cache[string, *cacheSet]
	stopOnce sync.Once
}

func newNamespaceCache(ttl time.Duration, capacity uint64) *namespaceCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *cacheSet](ttl),
		ttlcache.WithCapacity[string, *cacheSet](capacity),
		ttlcache.WithDisableTouchOnHit[string, *cacheSet](),
	)
	go cache.Start()
	return &namespaceCache{cache: cache}
}

// get returns the cacheSet for the longest cached namespace prefix the
// object path falls under, or nil when no prefix matches.
func (nc *namespaceCache) get(objectPath string) *cacheSet {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	prefixes := nc.cache.Keys()
	// Descending sort guarantees /a/b is considered before /a
	sort.Sort(sort.Reverse(sort.StringSlice(prefixes)))
	for _, prefix := range prefixes {
		if strings.HasPrefix(objectPath, prefix) {
			item := nc.cache.Get(prefix)
			if item == nil {
				// Expired between Keys and Get
				continue
			}
			return item.Value()
		}
	}
	return nil
}

// put stores the cacheSet under the namespace prefix, replacing any prior
// entry wholesale.
func (nc *namespaceCache) put(prefix string, cs *cacheSet) {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()
	nc.cache.Set(prefix, cs, ttlcache.DefaultTTL)
}

// stop shuts down the expiry janitor. Safe to call more than once; the
// underlying ttlcache blocks on a second Stop.
func (nc *namespaceCache) stop() {
	nc.stopOnce.Do(nc.cache.Stop)
}
