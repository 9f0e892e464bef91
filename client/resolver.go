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
	"net/url"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/PelicanPlatform/pelicanfs/server_structs"
)

// PreferredCacheSentinel in a preferred-cache list means "splice the
// director's candidates in here". Without it, a non-empty preferred list
// replaces the director's answer entirely.
const PreferredCacheSentinel = "+"

// cacheResolver produces a single working endpoint for an object path.
// Cached namespace entries are used without any network traffic; on a
// miss, director candidates are merged with the preferred-cache override
// list and probed sequentially for liveness.
type cacheResolver struct {
	nsCache         *namespaceCache
	director        *directorClient
	preferredCaches []string
	probeClient     *http.Client
	probeTimeout    time.Duration

	// Concurrent misses for the same object path share one resolution.
	resolutions singleflight.Group

	// Optional bearer token forwarded to liveness probes; protected
	// namespaces reject anonymous HEAD requests.
	tokenProvider func() (string, error)

	// Invoked with every director answer so the owner can track
	// namespace metadata the fast path would otherwise never surface.
	onDirectorResponse func(server_structs.DirectorResponse)
}

func newCacheResolver(nsCache *namespaceCache, director *directorClient, preferredCaches []string, transport http.RoundTripper, probeTimeout time.Duration) *cacheResolver {
	return &cacheResolver{
		nsCache:         nsCache,
		director:        director,
		preferredCaches: preferredCaches,
		probeClient:     &http.Client{Transport: transport},
		probeTimeout:    probeTimeout,
	}
}

// hasSentinel reports whether the preferred-cache list asks for the
// director's candidates to be spliced in.
func hasSentinel(preferred []string) bool {
	for _, entry := range preferred {
		if entry == PreferredCacheSentinel {
			return true
		}
	}
	return false
}

// buildCandidates merges the preferred-cache override list with director
// candidates, replacing the sentinel in place and de-duplicating by
// canonical endpoint.
func buildCandidates(preferred []string, directorCandidates []*url.URL) ([]*url.URL, error) {
	merged := make([]*url.URL, 0, len(preferred)+len(directorCandidates))
	for _, entry := range preferred {
		if entry == PreferredCacheSentinel {
			merged = append(merged, directorCandidates...)
			continue
		}
		endpoint, err := url.Parse(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse preferred cache %s", entry)
		}
		merged = append(merged, endpoint)
	}
	if len(preferred) == 0 {
		merged = append(merged, directorCandidates...)
	}

	deduped := make([]*url.URL, 0, len(merged))
	seen := make(map[string]bool, len(merged))
	for _, endpoint := range merged {
		key := canonicalizeEndpoint(endpoint)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, endpoint)
	}
	return deduped, nil
}

// probe issues a bounded HEAD request against the candidate for the
// object. Any 2xx/3xx status means the candidate is alive; connection
// errors, timeouts, and not-found all mean "try the next one".
func (cr *cacheResolver) probe(ctx context.Context, candidate *url.URL, objectPath string) bool {
	probeUrl := *candidate
	probeUrl.Path = objectPath

	probeCtx, cancel := context.WithTimeout(ctx, cr.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, probeUrl.String(), nil)
	if err != nil {
		log.Warningln("Failed to create liveness probe for", probeUrl.String(), ":", err)
		return false
	}
	if cr.tokenProvider != nil {
		if token, err := cr.tokenProvider(); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := cr.probeClient.Do(req)
	if err != nil {
		log.Debugln("Liveness probe against", probeUrl.String(), "failed:", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		log.Debugln("Liveness probe against", probeUrl.String(), "returned status", resp.StatusCode)
		return false
	}
	return true
}

// resolve returns a working endpoint URL, already joined with the object
// path, for the object. The fast path is a pure cache lookup; the slow
// path queries the director and probes candidates in order.
func (cr *cacheResolver) resolve(ctx context.Context, objectPath string) (*url.URL, error) {
	if cs := cr.nsCache.get(objectPath); cs != nil && cs.size() > 0 {
		return cs.preferred(objectPath)
	}

	result, err, _ := cr.resolutions.Do(objectPath, func() (interface{}, error) {
		return cr.resolveSlow(ctx, objectPath)
	})
	if err != nil {
		return nil, err
	}
	return result.(*url.URL), nil
}

func (cr *cacheResolver) resolveSlow(ctx context.Context, objectPath string) (*url.URL, error) {
	var directorCandidates []*url.URL
	// With a preferred list and no sentinel the director is not consulted,
	// so there is no director-declared namespace; everything lives under
	// the root prefix.
	namespacePrefix := "/"

	if len(cr.preferredCaches) == 0 || hasSentinel(cr.preferredCaches) {
		dirResp, err := cr.director.queryObject(ctx, objectPath)
		if err != nil {
			return nil, err
		}
		directorCandidates = dirResp.ObjectServers
		if dirResp.XPelNsHdr.Namespace != "" {
			namespacePrefix = dirResp.XPelNsHdr.Namespace
		}
		if cr.onDirectorResponse != nil {
			cr.onDirectorResponse(dirResp)
		}
	}

	candidates, err := buildCandidates(cr.preferredCaches, directorCandidates)
	if err != nil {
		return nil, err
	}

	for idx, candidate := range candidates {
		if !cr.probe(ctx, candidate, objectPath) {
			continue
		}

		// The accepted candidate plus everything untried form the new
		// cache set; the dead prefix of the list is dropped.
		cr.nsCache.put(namespacePrefix, newCacheSet(candidates[idx:]))

		result := *candidate
		result.Path = objectPath
		log.Debugln("Resolved", objectPath, "to endpoint", result.String())
		return &result, nil
	}

	return nil, NoAvailableSourceErr.Wrap(
		errors.Errorf("exhausted all %d candidate endpoints for %s", len(candidates), objectPath))
}

// close releases the namespace cache's background janitor.
func (cr *cacheResolver) close() {
	cr.nsCache.stop()
}

// markBad removes the endpoint from whichever cached namespace entry owns
// it. Silently a no-op when no entry matches; the entry may have expired.
func (cr *cacheResolver) markBad(endpoint *url.URL) {
	cs := cr.nsCache.get(endpoint.Path)
	if cs == nil {
		return
	}
	cs.markBad(endpoint)
}
