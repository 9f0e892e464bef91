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
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/PelicanPlatform/pelicanfs/config"
	"github.com/PelicanPlatform/pelicanfs/pelican_url"
	"github.com/PelicanPlatform/pelicanfs/server_structs"
)

type (
	// FederatedFilesystem is the public operation surface of the client.
	// Every operation resolves a working endpoint, delegates to the HTTP
	// collaborator, and marks the endpoint bad before propagating any
	// delegated failure.
	//
	// An instance binds to exactly one federation: either at construction,
	// or to the federation of the first pelican:// or osdf:// path it sees.
	FederatedFilesystem struct {
		mutex        sync.Mutex
		discoveryUrl *pelican_url.PelicanURL
		director     *directorClient
		resolver     *cacheResolver
		httpFs       *httpFilesystem
		transport    http.RoundTripper

		preferredCaches []string
		directReads     bool
		enableAcquire   bool
		tokenLocation   string
		fixedToken      string
		userAgent       string

		// Director-declared namespace info, recorded as queries happen,
		// keyed by namespace prefix.
		nsInfo map[string]*namespaceInfo
	}

	namespaceInfo struct {
		dirResp      server_structs.DirectorResponse
		requireToken bool
		readTokens   *tokenGenerator
		writeTokens  *tokenGenerator
	}

	FilesystemOption func(*FederatedFilesystem)
)

// WithPreferredCaches overrides the config-supplied preferred cache list.
// The "+" entry splices the director's candidates in at that position.
func WithPreferredCaches(caches []string) FilesystemOption {
	return func(ffs *FederatedFilesystem) {
		ffs.preferredCaches = caches
	}
}

// WithDirectReads makes data operations bypass cache resolution and read
// from the authoritative origin.
func WithDirectReads(directReads bool) FilesystemOption {
	return func(ffs *FederatedFilesystem) {
		ffs.directReads = directReads
	}
}

// WithTokenLocation sets an explicit token file tried ahead of all
// environment-based credential discovery.
func WithTokenLocation(location string) FilesystemOption {
	return func(ffs *FederatedFilesystem) {
		ffs.tokenLocation = location
	}
}

// WithToken pins a fixed bearer token for every authorized operation.
func WithToken(token string) FilesystemOption {
	return func(ffs *FederatedFilesystem) {
		ffs.fixedToken = token
	}
}

// WithAcquireToken enables the interactive helper as the credential
// search's terminal fallback.
func WithAcquireToken(enable bool) FilesystemOption {
	return func(ffs *FederatedFilesystem) {
		ffs.enableAcquire = enable
	}
}

// WithTransport overrides the shared HTTP transport. Mostly for tests.
func WithTransport(transport http.RoundTripper) FilesystemOption {
	return func(ffs *FederatedFilesystem) {
		ffs.transport = transport
	}
}

// NewFederatedFilesystem creates a filesystem bound to the federation of
// the given discovery URL. An empty URL defers binding to the first
// federation-qualified path an operation sees.
func NewFederatedFilesystem(discoveryUrl string, opts ...FilesystemOption) (*FederatedFilesystem, error) {
	config.InitClient()

	ffs := &FederatedFilesystem{
		preferredCaches: viper.GetStringSlice("Client.PreferredCaches"),
		directReads:     viper.GetBool("Client.DirectReads"),
		tokenLocation:   viper.GetString("Client.TokenLocation"),
		userAgent:       "pelicanfs",
		nsInfo:          make(map[string]*namespaceInfo),
	}
	for _, opt := range opts {
		opt(ffs)
	}
	if ffs.transport == nil {
		ffs.transport = config.GetTransport()
	}
	ffs.httpFs = newHttpFilesystem(ffs.transport, ffs.userAgent)

	if discoveryUrl != "" {
		pUrl, err := pelican_url.Parse(discoveryUrl)
		if err != nil {
			return nil, err
		}
		if err := ffs.bind(context.Background(), pUrl); err != nil {
			return nil, err
		}
	}
	return ffs, nil
}

// NewOsdfFilesystem creates a filesystem bound to the OSDF federation.
func NewOsdfFilesystem(opts ...FilesystemOption) (*FederatedFilesystem, error) {
	return NewFederatedFilesystem("pelican://"+pelican_url.OsdfDiscoveryHost+"/", opts...)
}

// bind permanently attaches the filesystem to the path's federation.
// Callers must not hold ffs.mutex.
func (ffs *FederatedFilesystem) bind(ctx context.Context, pUrl *pelican_url.PelicanURL) error {
	if err := pUrl.PopulateFedInfo(pelican_url.WithContext(ctx), pelican_url.WithClient(&http.Client{Transport: ffs.transport}), pelican_url.UseCached(true)); err != nil {
		return InvalidMetadataErr.Wrap(err)
	}

	director, err := newDirectorClient(pUrl.FedInfo.DirectorEndpoint, ffs.transport, ffs.userAgent)
	if err != nil {
		return err
	}

	nsCache := newNamespaceCache(
		viper.GetDuration("Client.NamespaceCacheTTL"),
		uint64(viper.GetInt("Client.NamespaceCacheSize")),
	)
	resolver := newCacheResolver(nsCache, director, ffs.preferredCaches, ffs.transport, viper.GetDuration("Client.ProbeTimeout"))
	resolver.onDirectorResponse = func(dirResp server_structs.DirectorResponse) {
		ffs.recordNamespace(dirResp)
	}
	if ffs.fixedToken != "" {
		token := ffs.fixedToken
		resolver.tokenProvider = func() (string, error) { return token, nil }
	}

	ffs.mutex.Lock()
	defer ffs.mutex.Unlock()
	if ffs.discoveryUrl != nil {
		// Raced with another binder; first one wins and the loser's
		// namespace cache must not leak its janitor
		nsCache.stop()
		return nil
	}
	ffs.discoveryUrl = pUrl
	ffs.director = director
	ffs.resolver = resolver
	log.Debugln("Filesystem bound to federation", pUrl.DiscoveryUrl())
	return nil
}

// Close releases the background resources of the bound federation's
// resolution engine. The filesystem must not be used afterwards.
func (ffs *FederatedFilesystem) Close() {
	ffs.mutex.Lock()
	resolver := ffs.resolver
	ffs.mutex.Unlock()
	if resolver != nil {
		resolver.close()
	}
}

// checkFsPath validates a path against the bound federation and returns
// the namespace-relative object path and any query string carried on it.
// Federation-qualified paths bind an unbound instance; a qualified path
// for a different federation fails with invalid-metadata.
func (ffs *FederatedFilesystem) checkFsPath(ctx context.Context, fsPath string) (string, string, error) {
	if strings.HasPrefix(fsPath, "/") {
		ffs.mutex.Lock()
		bound := ffs.discoveryUrl != nil
		ffs.mutex.Unlock()
		if !bound {
			return "", "", InvalidMetadataErr.Wrap(
				errors.New("filesystem is not bound to a federation; use a pelican:// or osdf:// path first"))
		}
		objectPath, rawQuery := fsPath, ""
		if idx := strings.Index(fsPath, "?"); idx >= 0 {
			objectPath, rawQuery = fsPath[:idx], fsPath[idx+1:]
		}
		return path.Clean(objectPath), rawQuery, nil
	}

	pUrl, err := pelican_url.Parse(fsPath)
	if err != nil {
		return "", "", err
	}

	ffs.mutex.Lock()
	bound := ffs.discoveryUrl
	ffs.mutex.Unlock()

	if bound == nil {
		if err := ffs.bind(ctx, pUrl); err != nil {
			return "", "", err
		}
	} else if bound.Host != pUrl.Host {
		return "", "", InvalidMetadataErr.Wrap(
			errors.Errorf("path %s belongs to federation %s but this filesystem is bound to %s",
				fsPath, pUrl.DiscoveryUrl(), bound.DiscoveryUrl()))
	}
	return path.Clean(pUrl.Path), pUrl.RawQuery, nil
}

// recordNamespace remembers the director-declared namespace info so later
// operations know whether a token is required.
func (ffs *FederatedFilesystem) recordNamespace(dirResp server_structs.DirectorResponse) *namespaceInfo {
	prefix := dirResp.XPelNsHdr.Namespace
	if prefix == "" {
		prefix = "/"
	}

	ffs.mutex.Lock()
	defer ffs.mutex.Unlock()
	info, ok := ffs.nsInfo[prefix]
	if !ok {
		info = &namespaceInfo{}
		ffs.nsInfo[prefix] = info
	}
	info.dirResp = dirResp
	info.requireToken = dirResp.XPelNsHdr.RequireToken
	return info
}

// tokenForOperation produces a bearer token for the object if its
// namespace requires one. A fixed token always wins; otherwise a
// per-namespace generator drives credential discovery.
func (ffs *FederatedFilesystem) tokenForOperation(objectPath string, operation config.TokenOperation) (string, error) {
	if ffs.fixedToken != "" {
		return ffs.fixedToken, nil
	}

	ffs.mutex.Lock()
	var info *namespaceInfo
	bestLen := -1
	for prefix, candidate := range ffs.nsInfo {
		if strings.HasPrefix(objectPath, prefix) && len(prefix) > bestLen {
			info = candidate
			bestLen = len(prefix)
		}
	}
	if info == nil || !info.requireToken {
		ffs.mutex.Unlock()
		return "", nil
	}

	var generator *tokenGenerator
	if operation.IsWrite() {
		generator = info.writeTokens
	} else {
		generator = info.readTokens
	}
	if generator == nil {
		dest := &pelican_url.PelicanURL{
			Scheme: pelican_url.PelicanScheme,
			Host:   ffs.discoveryUrl.Host,
			Path:   objectPath,
		}
		dirResp := info.dirResp
		generator = newTokenGenerator(dest, &dirResp, operation, ffs.enableAcquire)
		if ffs.tokenLocation != "" {
			generator.TokenLocation = ffs.tokenLocation
		}
		if operation.IsWrite() {
			info.writeTokens = generator
		} else {
			info.readTokens = generator
		}
	}
	ffs.mutex.Unlock()

	return generator.Get()
}

// dataEndpoint resolves the object-data endpoint: a live cache via the
// resolution engine, or the authoritative origin when direct reads are
// configured.
func (ffs *FederatedFilesystem) dataEndpoint(ctx context.Context, objectPath string) (*url.URL, error) {
	if ffs.directReads {
		location, dirResp, err := ffs.director.queryOrigin(ctx, objectPath)
		if err != nil {
			return nil, err
		}
		ffs.recordNamespace(dirResp)
		if location.Path == "" {
			location.Path = objectPath
		}
		return location, nil
	}
	return ffs.resolver.resolve(ctx, objectPath)
}

// withDataEndpoint wraps an operation body in the uniform
// resolve / delegate / mark-bad-on-failure policy.
func (ffs *FederatedFilesystem) withDataEndpoint(ctx context.Context, fsPath string, operation config.TokenOperation, body func(resolvedUrl *url.URL, token string) error) error {
	objectPath, rawQuery, err := ffs.checkFsPath(ctx, fsPath)
	if err != nil {
		return err
	}

	// Resolution is keyed on the bare object path; the query rides along
	// to the endpoint that ultimately serves the request
	resolvedUrl, err := ffs.dataEndpoint(ctx, objectPath)
	if err != nil {
		return err
	}
	if rawQuery != "" {
		resolvedUrl.RawQuery = rawQuery
	}

	token, err := ffs.tokenForOperation(objectPath, operation)
	if err != nil {
		return err
	}

	if err := body(resolvedUrl, token); err != nil {
		// Best-effort bookkeeping; the caller gets the original error
		ffs.resolver.markBad(resolvedUrl)
		return err
	}
	return nil
}

// collectionEndpoint resolves the collection-listing endpoint via the
// director's PROPFIND query. Listings must hit an origin capable of
// directory enumeration, unlike data reads which prefer nearby caches.
func (ffs *FederatedFilesystem) collectionEndpoint(ctx context.Context, fsPath string) (*url.URL, string, *tokenGenerator, error) {
	objectPath, _, err := ffs.checkFsPath(ctx, fsPath)
	if err != nil {
		return nil, "", nil, err
	}

	endpoint, dirResp, err := ffs.director.queryListing(ctx, objectPath)
	if err != nil {
		return nil, "", nil, err
	}
	info := ffs.recordNamespace(dirResp)

	var generator *tokenGenerator
	if info.requireToken && ffs.fixedToken == "" {
		ffs.mutex.Lock()
		if info.readTokens == nil {
			dest := &pelican_url.PelicanURL{
				Scheme: pelican_url.PelicanScheme,
				Host:   ffs.discoveryUrl.Host,
				Path:   objectPath,
			}
			respCopy := info.dirResp
			info.readTokens = newTokenGenerator(dest, &respCopy, config.TokenRead, ffs.enableAcquire)
			if ffs.tokenLocation != "" {
				info.readTokens.TokenLocation = ffs.tokenLocation
			}
		}
		generator = info.readTokens
		ffs.mutex.Unlock()
	} else if ffs.fixedToken != "" {
		generator = newTokenGenerator(nil, nil, config.TokenRead, false)
		generator.SetToken(ffs.fixedToken)
	}

	base := &url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host}
	return base, objectPath, generator, nil
}

// removeHostFromPaths recursively strips the endpoint's scheme://host
// prefix from every URL string inside nested slices and string-keyed
// maps, so callers see namespace-relative names. Values of other types
// pass through unchanged; the operation is idempotent.
func removeHostFromPaths(value interface{}, endpoint *url.URL) interface{} {
	prefix := (&url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host}).String()
	switch typed := value.(type) {
	case string:
		return strings.TrimPrefix(typed, prefix)
	case []string:
		result := make([]string, len(typed))
		for idx, entry := range typed {
			result[idx] = strings.TrimPrefix(entry, prefix)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(typed))
		for idx, entry := range typed {
			result[idx] = removeHostFromPaths(entry, endpoint)
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(typed))
		for key, entry := range typed {
			result[key] = removeHostFromPaths(entry, endpoint)
		}
		return result
	default:
		return value
	}
}

// Open returns a reader over the object's contents. The caller owns
// closing it.
func (ffs *FederatedFilesystem) Open(ctx context.Context, fsPath string) (reader io.ReadCloser, err error) {
	err = ffs.withDataEndpoint(ctx, fsPath, config.TokenRead, func(resolvedUrl *url.URL, token string) error {
		var bodyErr error
		reader, bodyErr = ffs.httpFs.open(ctx, resolvedUrl, token)
		return bodyErr
	})
	return
}

// Cat reads the whole object into memory.
func (ffs *FederatedFilesystem) Cat(ctx context.Context, fsPath string) (contents []byte, err error) {
	err = ffs.withDataEndpoint(ctx, fsPath, config.TokenRead, func(resolvedUrl *url.URL, token string) error {
		var bodyErr error
		contents, bodyErr = ffs.httpFs.cat(ctx, resolvedUrl, token)
		return bodyErr
	})
	return
}

// Get downloads the object to a local path, returning the bytes written.
func (ffs *FederatedFilesystem) Get(ctx context.Context, fsPath string, localPath string) (written int64, err error) {
	err = ffs.withDataEndpoint(ctx, fsPath, config.TokenRead, func(resolvedUrl *url.URL, token string) error {
		var bodyErr error
		written, bodyErr = ffs.httpFs.get(ctx, resolvedUrl, token, localPath)
		return bodyErr
	})
	return
}

// Exists reports whether the object or collection exists.
func (ffs *FederatedFilesystem) Exists(ctx context.Context, fsPath string) (exists bool, err error) {
	err = ffs.withDataEndpoint(ctx, fsPath, config.TokenRead, func(resolvedUrl *url.URL, token string) error {
		var bodyErr error
		exists, bodyErr = ffs.httpFs.exists(ctx, resolvedUrl, token)
		return bodyErr
	})
	if err != nil && errors.Is(err, NoAvailableSourceErr) {
		// Nothing can serve it; as far as the caller is concerned it
		// does not exist
		return false, nil
	}
	return
}

// Stat returns the object's metadata with a namespace-relative name.
func (ffs *FederatedFilesystem) Stat(ctx context.Context, fsPath string) (info FileInfo, err error) {
	err = ffs.withDataEndpoint(ctx, fsPath, config.TokenRead, func(resolvedUrl *url.URL, token string) error {
		var bodyErr error
		info, bodyErr = ffs.httpFs.stat(ctx, resolvedUrl, token)
		if bodyErr == nil {
			info.Name = removeHostFromPaths(info.Name, resolvedUrl).(string)
		}
		return bodyErr
	})
	return
}

// IsFile reports whether the path names an object rather than a collection.
func (ffs *FederatedFilesystem) IsFile(ctx context.Context, fsPath string) (bool, error) {
	info, err := ffs.statViaListing(ctx, fsPath)
	if err != nil {
		return false, err
	}
	return !info.IsCollection, nil
}

// IsDir reports whether the path names a collection.
func (ffs *FederatedFilesystem) IsDir(ctx context.Context, fsPath string) (bool, error) {
	info, err := ffs.statViaListing(ctx, fsPath)
	if err != nil {
		return false, err
	}
	return info.IsCollection, nil
}

func (ffs *FederatedFilesystem) statViaListing(ctx context.Context, fsPath string) (FileInfo, error) {
	base, objectPath, generator, err := ffs.collectionEndpoint(ctx, fsPath)
	if err != nil {
		return FileInfo{}, err
	}

	davClient := createWebDavClient(base, generator, ffs.userAgent, ffs.transport)
	davInfo, err := davClient.Stat(objectPath)
	if err != nil {
		badUrl := *base
		badUrl.Path = objectPath
		ffs.resolver.markBad(&badUrl)
		return FileInfo{}, err
	}
	return FileInfo{
		Name:         objectPath,
		Size:         davInfo.Size(),
		ModTime:      davInfo.ModTime(),
		IsCollection: davInfo.IsDir(),
	}, nil
}

// Ls lists the immediate children of a collection, with namespace-relative
// names.
func (ffs *FederatedFilesystem) Ls(ctx context.Context, fsPath string) ([]FileInfo, error) {
	base, objectPath, generator, err := ffs.collectionEndpoint(ctx, fsPath)
	if err != nil {
		return nil, err
	}

	davClient := createWebDavClient(base, generator, ffs.userAgent, ffs.transport)
	entries, err := davClient.ReadDir(objectPath)
	if err != nil {
		badUrl := *base
		badUrl.Path = objectPath
		ffs.resolver.markBad(&badUrl)
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, FileInfo{
			Name:         path.Join(objectPath, entry.Name()),
			Size:         entry.Size(),
			ModTime:      entry.ModTime(),
			IsCollection: entry.IsDir(),
		})
	}
	return infos, nil
}

// Find returns every entry under the collection, to maxDepth levels below
// it (maxDepth < 0 means unbounded). Collections are included only when
// withCollections is set.
func (ffs *FederatedFilesystem) Find(ctx context.Context, fsPath string, maxDepth int, withCollections bool) ([]FileInfo, error) {
	base, objectPath, generator, err := ffs.collectionEndpoint(ctx, fsPath)
	if err != nil {
		return nil, err
	}

	davClient := createWebDavClient(base, generator, ffs.userAgent, ffs.transport)
	results := make([]FileInfo, 0)
	err = ffs.findRecursive(ctx, davClient, objectPath, maxDepth, withCollections, &results)
	if err != nil {
		badUrl := *base
		badUrl.Path = objectPath
		ffs.resolver.markBad(&badUrl)
		return nil, err
	}
	return results, nil
}

func (ffs *FederatedFilesystem) findRecursive(ctx context.Context, davClient webdavLister, dirPath string, maxDepth int, withCollections bool, results *[]FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if maxDepth == 0 {
		return nil
	}

	entries, err := davClient.ReadDir(dirPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entryPath := path.Join(dirPath, entry.Name())
		if entry.IsDir() {
			if withCollections {
				*results = append(*results, FileInfo{
					Name:         entryPath,
					ModTime:      entry.ModTime(),
					IsCollection: true,
				})
			}
			nextDepth := maxDepth
			if nextDepth > 0 {
				nextDepth--
			}
			if err := ffs.findRecursive(ctx, davClient, entryPath, nextDepth, withCollections, results); err != nil {
				return err
			}
		} else {
			*results = append(*results, FileInfo{
				Name:    entryPath,
				Size:    entry.Size(),
				ModTime: entry.ModTime(),
			})
		}
	}
	return nil
}

// WalkFunc is invoked once per entry found by Walk.
type WalkFunc func(info FileInfo) error

// Walk visits every entry under the collection, collections included.
func (ffs *FederatedFilesystem) Walk(ctx context.Context, fsPath string, walkFn WalkFunc) error {
	entries, err := ffs.Find(ctx, fsPath, -1, true)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := walkFn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Du returns the total size in bytes of every object under the path.
func (ffs *FederatedFilesystem) Du(ctx context.Context, fsPath string) (int64, error) {
	entries, err := ffs.Find(ctx, fsPath, -1, false)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		total += entry.Size
	}
	return total, nil
}

// DiscoverToken runs credential discovery for the object and returns the
// selected bearer token. An empty token with no error means the object's
// namespace is open.
func (ffs *FederatedFilesystem) DiscoverToken(ctx context.Context, fsPath string, operation config.TokenOperation) (string, error) {
	objectPath, _, err := ffs.checkFsPath(ctx, fsPath)
	if err != nil {
		return "", err
	}

	dirResp, err := ffs.director.queryObject(ctx, objectPath)
	if err != nil {
		return "", err
	}
	ffs.recordNamespace(dirResp)

	return ffs.tokenForOperation(objectPath, operation)
}

// Remove always fails; the federation is read-oriented.
func (ffs *FederatedFilesystem) Remove(ctx context.Context, fsPath string) error {
	return NotSupportedErr.Wrap(errors.New("remove"))
}

// Mkdir always fails; the federation is read-oriented.
func (ffs *FederatedFilesystem) Mkdir(ctx context.Context, fsPath string) error {
	return NotSupportedErr.Wrap(errors.New("mkdir"))
}

// Copy always fails; the federation is read-oriented.
func (ffs *FederatedFilesystem) Copy(ctx context.Context, srcPath string, dstPath string) error {
	return NotSupportedErr.Wrap(errors.New("copy"))
}

// Put always fails; the federation is read-oriented.
func (ffs *FederatedFilesystem) Put(ctx context.Context, localPath string, fsPath string) error {
	return NotSupportedErr.Wrap(errors.New("put"))
}
