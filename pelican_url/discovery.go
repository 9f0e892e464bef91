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
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type (
	MetadataErr struct {
		msg      string
		innerErr error
	}

	// FederationDiscovery is the JSON body served by a federation's
	// /.well-known/pelican-configuration endpoint.
	FederationDiscovery struct {
		DiscoveryEndpoint string `json:"discovery_endpoint"`
		DirectorEndpoint  string `json:"director_endpoint"`
		RegistryEndpoint  string `json:"namespace_registration_endpoint"`
		JwksUri           string `json:"jwks_uri"`
	}

	discoveryOptions struct {
		ctx        context.Context
		httpClient *http.Client
		userAgent  string
		useCached  bool
	}
	DiscoveryOption func(*discoveryOptions)

	cacheItem struct {
		fedInfo FederationDiscovery
		err     error
	}

	Cache = ttlcache.Cache[string, cacheItem]
)

var (
	MetadataTimeoutErr *MetadataErr = &MetadataErr{msg: "Timeout when querying metadata"}

	successTTL      = ttlcache.DefaultTTL
	failureTTL      = 5 * time.Minute
	pelicanUrlCache *Cache

	// Not a constant, because we want to be able to change it in tests
	OsdfDiscoveryHost string = "osg-htc.org"
)

// SetOsdfDiscoveryHost overrides the OSDF discovery host. Only meant for
// tests that don't want to perform real OSDF discovery; not thread-safe.
func SetOsdfDiscoveryHost(host string) (oldHost string, err error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return "", err
	}

	oldHost = OsdfDiscoveryHost
	OsdfDiscoveryHost = parsed.Host
	return
}

func NewMetadataError(err error, msg string) *MetadataErr {
	return &MetadataErr{
		msg:      msg,
		innerErr: err,
	}
}

func (e *MetadataErr) Error() string {
	if e.innerErr != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.innerErr)
	}
	return e.msg
}

func (e *MetadataErr) Is(target error) bool {
	if target, ok := target.(*MetadataErr); ok {
		return e.msg == target.msg
	}
	return false
}

func (e *MetadataErr) Wrap(err error) error {
	return &MetadataErr{
		innerErr: err,
		msg:      e.msg,
	}
}

func (e *MetadataErr) Unwrap() error {
	return e.innerErr
}

func WithContext(ctx context.Context) DiscoveryOption {
	return func(do *discoveryOptions) {
		do.ctx = ctx
	}
}

func WithClient(client *http.Client) DiscoveryOption {
	return func(do *discoveryOptions) {
		do.httpClient = client
	}
}

func UseCached(d bool) DiscoveryOption {
	return func(do *discoveryOptions) {
		do.useCached = d
	}
}

func WithUserAgent(ua string) DiscoveryOption {
	return func(do *discoveryOptions) {
		do.userAgent = ua
	}
}

// StartCache starts the shared discovery-document cache. Entries live
// for 30 minutes; failed lookups are retried after 5. Concurrent misses
// for the same discovery URL are coalesced through singleflight.
func StartCache() *Cache {
	baseLoader := getDynamicLoader(
		WithContext(context.Background()),
		WithClient(&http.Client{Timeout: 5 * time.Second}),
	)
	suppressedLoader := ttlcache.NewSuppressedLoader(baseLoader, new(singleflight.Group))
	urlCache := ttlcache.New(
		ttlcache.WithTTL[string, cacheItem](30*time.Minute),
		ttlcache.WithLoader(suppressedLoader),
	)

	go urlCache.Start()
	return urlCache
}

func getDynamicLoader(opts ...DiscoveryOption) ttlcache.LoaderFunc[string, cacheItem] {
	options := &discoveryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return ttlcache.LoaderFunc[string, cacheItem](
		func(c *ttlcache.Cache[string, cacheItem], key string) *ttlcache.Item[string, cacheItem] {
			var ctx context.Context
			var cancel context.CancelFunc
			if options.ctx == nil {
				ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
			} else {
				ctx = options.ctx
			}

			httpClient := options.httpClient
			if httpClient == nil {
				httpClient = &http.Client{Timeout: 5 * time.Second}
			}

			discoveryUrl, err := url.Parse(key)
			if err != nil {
				return c.Set(key, cacheItem{err: err}, failureTTL)
			}

			ua := options.userAgent
			if ua == "" {
				ua = "pelicanfs"
			}

			fedInfo, err := DiscoverFederation(ctx, httpClient, ua, discoveryUrl)
			if err != nil {
				// Set a shorter TTL for failures
				return c.Set(key, cacheItem{err: err}, failureTTL)
			}

			return c.Set(key, cacheItem{fedInfo: fedInfo}, successTTL)
		},
	)
}

// Helper function to start a metadata request.
//
// We see periodic timeouts when doing metadata lookup at sites.
// Adding a modest retry will, hopefully, reduce the number of errors
// that propagate out to users
func startMetadataQuery(ctx context.Context, httpClient *http.Client, ua string, discoveryUrl *url.URL) (result *http.Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryUrl.String(), nil)
	if err != nil {
		err = errors.Wrapf(err, "Failure when doing federation metadata request creation for %s", discoveryUrl)
		return
	}
	req.Header.Set("User-Agent", ua)

	result, err = httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			err = MetadataTimeoutErr.Wrap(err)
		} else {
			err = NewMetadataError(err, "Error occurred when querying for metadata")
		}
	}
	return
}

// DiscoverFederation fetches the federation discovery document for the
// given discovery URL. The document must be served over HTTPS at the
// well-known pelican-configuration path and contain a director endpoint.
func DiscoverFederation(ctx context.Context, httpClient *http.Client, ua string, discoveryUrl *url.URL) (metadata FederationDiscovery, err error) {
	log.Debugln("Performing federation service discovery against", discoveryUrl.String())

	fetchUrl := *discoveryUrl
	fetchUrl.Scheme = "https"
	fetchUrl.Path = PelicanDiscoveryPath
	fetchUrl.RawQuery = ""

	var result *http.Response
	for idx := 1; idx <= 3; idx++ {
		result, err = startMetadataQuery(ctx, httpClient, ua, &fetchUrl)
		if err == nil {
			break
		} else if errors.Is(err, MetadataTimeoutErr) && ctx.Err() == nil {
			log.Warningln("Timeout occurred when querying discovery URL", fetchUrl.String(), "for metadata;", 3-idx, "retries remaining")
			time.Sleep(2 * time.Second)
		} else {
			return
		}
	}
	if errors.Is(err, MetadataTimeoutErr) {
		log.Errorln("3 timeouts occurred when querying discovery URL", fetchUrl.String())
		return
	}

	if result.Body != nil {
		defer result.Body.Close()
	}

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return FederationDiscovery{}, errors.Wrapf(err, "Failure when doing federation metadata read to %s", fetchUrl.String())
	}

	if result.StatusCode != http.StatusOK {
		truncatedMessage := string(body)
		if len(body) > 1000 {
			truncatedMessage = string(body[:1000]) + " [... remainder truncated ...]"
		}
		return FederationDiscovery{}, NewMetadataError(
			errors.Errorf("federation metadata discovery failed with HTTP status %d.  Error message: %s", result.StatusCode, truncatedMessage),
			"Invalid metadata response")
	}

	metadata = FederationDiscovery{}
	if err = json.Unmarshal(body, &metadata); err != nil {
		return FederationDiscovery{}, NewMetadataError(
			errors.Wrapf(err, "Failure when parsing federation metadata at %s", fetchUrl.String()),
			"Invalid metadata response")
	}

	if metadata.DirectorEndpoint == "" {
		return FederationDiscovery{}, NewMetadataError(
			errors.New("federation discovery document does not include a director endpoint"),
			"Invalid metadata response")
	}

	log.Debugln("Federation service discovery resulted in director URL", metadata.DirectorEndpoint)

	return metadata, nil
}

// PopulateFedInfo fills in the federation metadata for the URL, hitting
// the shared discovery cache unless UseCached(false) is given.
func (p *PelicanURL) PopulateFedInfo(opts ...DiscoveryOption) error {
	p.FedInfo = FederationDiscovery{}

	options := &discoveryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if p.Host == "" {
		return errors.New(fmt.Sprintf("Unable to determine discovery host for Pelican URL %s", p.String()))
	}
	discoveryUrl := &url.URL{Scheme: "https", Host: p.Host, Path: PelicanDiscoveryPath}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	ctx := options.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if options.useCached {
		if pelicanUrlCache == nil {
			pelicanUrlCache = StartCache()
		}

		item := pelicanUrlCache.Get(discoveryUrl.String(), ttlcache.WithLoader(getDynamicLoader(WithClient(httpClient), WithContext(ctx))))
		if item != nil {
			if item.Value().err != nil {
				return item.Value().err
			}

			p.FedInfo = item.Value().fedInfo
			log.Debugln("Using cached federation info for", discoveryUrl.String())
			return nil
		}
	}

	fedInfo, err := DiscoverFederation(ctx, httpClient, options.userAgent, discoveryUrl)
	if err != nil {
		return err
	}

	p.FedInfo = fedInfo
	p.FedInfo.DiscoveryEndpoint = discoveryUrl.String()

	return nil
}
