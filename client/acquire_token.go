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
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	jwt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/PelicanPlatform/pelicanfs/config"
	"github.com/PelicanPlatform/pelicanfs/pelican_url"
	"github.com/PelicanPlatform/pelicanfs/server_structs"
	"github.com/PelicanPlatform/pelicanfs/utils"
)

type (
	// A token contents and its expiration time
	tokenInfo struct {
		Contents string
		Expiry   time.Time
	}

	// An object that can fetch an appropriate token for a given destination.
	//
	// Thread-safe; one mutex serializes the whole cache-check, discovery,
	// and validation sequence so concurrent callers never trigger duplicate
	// interactive prompts or duplicate file reads.
	tokenGenerator struct {
		mutex         sync.Mutex
		DirResp       *server_structs.DirectorResponse
		Destination   *pelican_url.PelicanURL
		TokenLocation string
		TokenName     string
		Operation     config.TokenOperation
		EnableAcquire bool
		token         *tokenInfo
		iterator      *tokenContentIterator
	}

	// An object that iterates through the various possible tokens.
	//
	// The method cursor is monotonic: an exhausted method is never
	// revisited, and advancing past the last method keeps yielding
	// ("", false) indefinitely. Exhaustion is a normal outcome, not an
	// error.
	tokenContentIterator struct {
		Location         string
		Name             string
		Destination      *pelican_url.PelicanURL
		Operation        config.TokenOperation
		EnableAcquire    bool
		CredLocations    []string
		Method           int
		CurrentTokenPath string // Tracks the path of the current token being returned
	}
)

func newTokenGenerator(dest *pelican_url.PelicanURL, dirResp *server_structs.DirectorResponse, operation config.TokenOperation, enableAcquire bool) *tokenGenerator {
	return &tokenGenerator{
		DirResp:       dirResp,
		Destination:   dest,
		Operation:     operation,
		EnableAcquire: enableAcquire,
	}
}

func newTokenContentIterator(loc string, name string, dest *pelican_url.PelicanURL, operation config.TokenOperation, enableAcquire bool) *tokenContentIterator {
	return &tokenContentIterator{
		Location:      loc,
		Name:          name,
		Destination:   dest,
		Operation:     operation,
		EnableAcquire: enableAcquire,
	}
}

// SetTokenLocation forces the token generator to read the token from a
// fixed location, ahead of any environment-based discovery.
func (tg *tokenGenerator) SetTokenLocation(tokenLocation string) {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()
	tg.TokenLocation = tokenLocation
}

// SetTokenName forces the generator to look for a specific named token
// in the HTCondor credential directory.
func (tg *tokenGenerator) SetTokenName(name string) {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()
	tg.TokenName = name
}

// SetToken forces the use of a specific token for the lifetime of the
// generator, bypassing discovery entirely.
func (tg *tokenGenerator) SetToken(contents string) {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()
	tg.token = &tokenInfo{
		Contents: contents,
		Expiry:   time.Now().Add(100 * 365 * 24 * time.Hour), // 100 years should be enough for "forever"
	}
}

// Copy creates a fresh generator for the same destination and operation,
// without the cached token or iterator state.
func (tg *tokenGenerator) Copy() *tokenGenerator {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()
	return &tokenGenerator{
		DirResp:       tg.DirResp,
		Destination:   tg.Destination,
		TokenLocation: tg.TokenLocation,
		TokenName:     tg.TokenName,
		Operation:     tg.Operation,
		EnableAcquire: tg.EnableAcquire,
	}
}

func (tci *tokenContentIterator) discoverHTCondorTokenLocations(tokenName string) (tokenLocations []string) {
	tokenLocations = make([]string, 0)

	// Tokens with dots in their name may need to have dots converted to underscores.
	if strings.Contains(tokenName, ".") {
		underscoreTokenName := strings.ReplaceAll(tokenName, ".", "_")
		// If we find a token after replacing dots, then we're already done.
		tokenLocations = tci.discoverHTCondorTokenLocations(underscoreTokenName)
		if len(tokenLocations) > 0 {
			return
		}
	}

	credsDir, isCondorCredsSet := os.LookupEnv("_CONDOR_CREDS")
	if !isCondorCredsSet {
		credsDir = ".condor_creds"
	}

	if len(tokenName) > 0 {
		tokenLocation := filepath.Join(credsDir, tokenName+".use")
		// Token was explicitly requested; warn if it doesn't exist.
		if _, err := os.Stat(tokenLocation); err != nil {
			log.Warningln("Environment variable _CONDOR_CREDS is set, but the credential file is not readable:", err)
		} else {
			tokenLocations = append(tokenLocations, tokenLocation)
			return
		}
	} else {
		tokenLocation := filepath.Join(credsDir, "scitokens.use")
		// Just prefer the scitokens.use first by convention; do not warn if it is missing
		if _, err := os.Stat(tokenLocation); err == nil {
			tokenLocations = append(tokenLocations, tokenLocation)
		}
	}

	// Walk through all available credentials in the directory; scitokens.use
	// was already put first, if available, above.
	err := filepath.Walk(credsDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == credsDir {
			return nil
		} else if info.IsDir() {
			return filepath.SkipDir
		}
		baseName := filepath.Base(path)
		if baseName == "scitokens.use" {
			return nil
		}
		if len(baseName) > 0 && baseName[0] == '.' {
			return nil
		}
		tokenLocations = append(tokenLocations, path)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		log.Warningln("Failure when iterating through directory to look through tokens:", err)
	}
	return
}

// next advances the credential search and returns the next candidate
// token contents. The search order is: the explicit location, the WLCG
// bearer-token environment variables and default token files, the legacy
// TOKEN variable, the HTCondor credential directory, and finally the
// interactive helper. Each failed source logs and falls through.
func (tci *tokenContentIterator) next() (string, bool) {
	switch tci.Method {
	case 0:
		tci.Method += 1
		if tci.Location != "" {
			log.Debugln("Using API-specified token location", tci.Location)
			if _, err := os.Stat(tci.Location); err != nil {
				log.Warningln("Client was asked to read token from location", tci.Location, "but it is not readable:", err)
			} else if jwtSerialized, err := utils.GetTokenFromFile(tci.Location); err == nil {
				tci.CurrentTokenPath = tci.Location
				return jwtSerialized, true
			}
		}
		fallthrough
	// WLCG Token Discovery
	case 1:
		tci.Method += 1
		if bearerToken, isBearerTokenSet := os.LookupEnv("BEARER_TOKEN"); isBearerTokenSet {
			log.Debugln("Using token from BEARER_TOKEN environment variable")
			tci.CurrentTokenPath = "BEARER_TOKEN"
			return bearerToken, true
		}
		fallthrough
	case 2:
		tci.Method += 1
		if bearerTokenFile, isBearerTokenFileSet := os.LookupEnv("BEARER_TOKEN_FILE"); isBearerTokenFileSet {
			log.Debugln("Using token from BEARER_TOKEN_FILE environment variable")
			if _, err := os.Stat(bearerTokenFile); err != nil {
				log.Warningln("Environment variable BEARER_TOKEN_FILE is set, but file being pointed to does not exist:", err)
			} else if jwtSerialized, err := utils.GetTokenFromFile(bearerTokenFile); err == nil {
				tci.CurrentTokenPath = bearerTokenFile
				return jwtSerialized, true
			}
		}
		fallthrough
	case 3:
		tci.Method += 1
		if xdgRuntimeDir, xdgRuntimeDirSet := os.LookupEnv("XDG_RUNTIME_DIR"); xdgRuntimeDirSet {
			uid := os.Getuid()
			tmpTokenPath := filepath.Join(xdgRuntimeDir, "bt_u"+strconv.Itoa(uid))
			if _, err := os.Stat(tmpTokenPath); err == nil {
				log.Debugln("Using token from XDG_RUNTIME_DIR")
				if jwtSerialized, err := utils.GetTokenFromFile(tmpTokenPath); err == nil {
					tci.CurrentTokenPath = tmpTokenPath
					return jwtSerialized, true
				}
			}
		}
		fallthrough
	case 4:
		tci.Method += 1
		// Check for /tmp/bt_u<uid>
		uid := os.Getuid()
		tmpTokenPath := filepath.Join(os.TempDir(), "bt_u"+strconv.Itoa(uid))
		if _, err := os.Stat(tmpTokenPath); err == nil {
			log.Debugln("Using token from", tmpTokenPath)
			if jwtSerialized, err := utils.GetTokenFromFile(tmpTokenPath); err == nil {
				tci.CurrentTokenPath = tmpTokenPath
				return jwtSerialized, true
			}
		}
		fallthrough
	case 5:
		tci.Method += 1
		// Backwards compatibility for getting token; the TOKEN env var is
		// not standardized but some of the oldest use cases utilize it.
		if tokenFile, isTokenSet := os.LookupEnv("TOKEN"); isTokenSet {
			if _, err := os.Stat(tokenFile); err != nil {
				log.Warningln("Environment variable TOKEN is set, but file being pointed to does not exist:", err)
			} else if jwtSerialized, err := utils.GetTokenFromFile(tokenFile); err == nil {
				log.Debugln("Using token from TOKEN environment variable")
				tci.CurrentTokenPath = tokenFile
				return jwtSerialized, true
			}
		}
		fallthrough
	case 6:
		tci.Method += 1
		// Look in the HTCondor runtime. The discovery runs at most once;
		// subsequent advances consume the discovered list one at a time.
		tci.CredLocations = tci.discoverHTCondorTokenLocations(tci.Name)
		fallthrough
	default:
		for {
			idx := tci.Method - 7
			if idx >= len(tci.CredLocations) {
				break
			}
			tci.Method += 1
			if jwtSerialized, err := utils.GetTokenFromFile(tci.CredLocations[idx]); err == nil {
				tci.CurrentTokenPath = tci.CredLocations[idx]
				return jwtSerialized, true
			}
		}

		// Terminal method: the interactive helper, attempted exactly once.
		if tci.Method == 7+len(tci.CredLocations) {
			tci.Method += 1
			if tci.EnableAcquire && tci.Destination != nil {
				if contents, err := acquireTokenInteractively(tci.Destination, tci.Operation); err == nil && contents != "" {
					tci.CurrentTokenPath = "interactive helper"
					return contents, true
				} else if err != nil {
					log.Warningln("Interactive token acquisition failed:", err)
				}
			}
		}

		log.Debugln("Out of token locations to search")
		return "", false
	}
}

// getToken drives the iterator to exhaustion, caching and returning the
// first acceptable candidate. Callers must hold tg.mutex.
func (tg *tokenGenerator) getToken() (string, error) {
	potentialTokens := make([]tokenInfo, 0)
	var lastTokenLocation string

	opts := config.TokenGenerationOpts{Operation: tg.Operation}

	if tg.iterator == nil {
		tg.iterator = newTokenContentIterator(tg.TokenLocation, tg.TokenName, tg.Destination, tg.Operation, tg.EnableAcquire)
	}
	for {
		contents, cont := tg.iterator.next()
		if !cont {
			tg.iterator = nil
			break
		}
		valid, expiry := tokenIsValid(contents)
		info := tokenInfo{contents, expiry}
		if valid && (tg.DirResp == nil || tokenIsAcceptable(contents, tg.Destination.Path, *tg.DirResp, opts)) {
			tg.token = &info
			return contents, nil
		} else if valid {
			potentialTokens = append(potentialTokens, info)
			if tg.iterator.CurrentTokenPath != "" {
				lastTokenLocation = tg.iterator.CurrentTokenPath
			}
		}
	}

	// If an unexpired token was found, even though it's not thought to be
	// acceptable, use it instead of failing outright under the theory the
	// user knows better.
	if len(potentialTokens) > 0 {
		tokenLoc := lastTokenLocation
		if tokenLoc == "" {
			tokenLoc = tg.TokenLocation
		}
		log.Warningf("Using provided token %q even though it does not appear to be acceptable for the operation", tokenLoc)
		tg.token = &potentialTokens[0]
		return potentialTokens[0].Contents, nil
	}

	destination := "the destination"
	if tg.Destination != nil {
		destination = tg.Destination.String()
	}
	return "", TokenNotFoundErr.Wrap(
		errors.New("credential is required for " + destination + " but was not discovered"))
}

// Get returns the token contents for the generator's destination.
//
// Thread-safe.
func (tg *tokenGenerator) Get() (string, error) {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()

	if tg.token != nil && time.Until(tg.token.Expiry) > 0 && tg.token.Contents != "" {
		return tg.token.Contents, nil
	}
	return tg.getToken()
}

// tokenIsAcceptable reports whether the serialized JWT's scopes authorize
// the given object path for the requested operation, per the director's
// declared namespace and issuers.
func tokenIsAcceptable(jwtSerialized string, objectName string, dirResp server_structs.DirectorResponse, opts config.TokenGenerationOpts) bool {
	tok, err := jwt.Parse([]byte(jwtSerialized), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		log.Warningln("Failed to parse token:", err)
		return false
	}

	// Ensure the token issuer matches one of the issuers in the director
	// response, if any were provided
	acceptableIssuers := dirResp.XPelAuthHdr.Issuers
	if len(acceptableIssuers) == 0 {
		acceptableIssuers = dirResp.XPelTokGenHdr.Issuers
	}
	if len(acceptableIssuers) > 0 {
		foundIssuer := false
		for _, u := range acceptableIssuers {
			if u != nil && tok.Issuer() == u.String() {
				foundIssuer = true
				break
			}
		}
		if !foundIssuer {
			return false
		}
	}

	objectPathCleaned := path.Clean(objectName)
	if !strings.HasPrefix(objectPathCleaned, dirResp.XPelNsHdr.Namespace) {
		return false
	}

	// For some issuers, the token base path is distinct from the namespace
	// path; strip the issuer base path when one is declared.
	targetResource := path.Clean("/" + objectPathCleaned[len(dirResp.XPelNsHdr.Namespace):])
	if len(dirResp.XPelTokGenHdr.BasePaths) > 0 && dirResp.XPelTokGenHdr.BasePaths[0] != "" {
		targetResource = path.Clean("/" + strings.TrimPrefix(objectPathCleaned, dirResp.XPelTokGenHdr.BasePaths[0]))
	}

	scopesIface, ok := tok.Get("scope")
	if !ok {
		return false
	}
	scopes, ok := scopesIface.(string)
	if !ok {
		return false
	}

	return hasAcceptableScope(scopes, targetResource, opts)
}

// parseScope splits a scope string into authorization and resource parts.
// If no colon is present, returns the entire scope as authz with empty resource.
func parseScope(scope string) (authz, resource string, hasResource bool) {
	parts := strings.SplitN(scope, ":", 2)
	if len(parts) == 1 {
		return parts[0], "", false
	}
	return parts[0], parts[1], true
}

// hasAcceptableScope checks whether any scope in the space-separated scope
// string authorizes the operation against the target resource.
func hasAcceptableScope(scopes string, targetResource string, opts config.TokenGenerationOpts) bool {
	for _, scope := range strings.Fields(scopes) {
		authz, resource, hasResource := parseScope(scope)
		if authz == "" {
			continue
		}

		if !isValidStorageScope(authz, opts.Operation) {
			continue
		}

		// A scope with no resource restriction covers everything
		if !hasResource {
			return true
		}

		if matchesResource(targetResource, resource, opts.Operation) {
			return true
		}
	}
	return false
}

// matchesResource checks whether the target resource satisfies the scope's
// resource restriction: exact match for shared operations, prefix match
// otherwise.
func matchesResource(targetResource, scopeResource string, operation config.TokenOperation) bool {
	// Normalize trailing slashes (except for root "/") so a scope like
	// "/gluex/" matches both "/gluex/something" and "/gluex"
	targetNorm := targetResource
	if len(targetNorm) > 1 {
		targetNorm = strings.TrimSuffix(targetNorm, "/")
	}
	scopeNorm := scopeResource
	if len(scopeNorm) > 1 {
		scopeNorm = strings.TrimSuffix(scopeNorm, "/")
	}

	if operation.IsShared() {
		return targetNorm == scopeNorm
	}
	return strings.HasPrefix(targetNorm, scopeNorm)
}

func isValidStorageScope(authz string, operation config.TokenOperation) bool {
	if operation.IsWrite() {
		return authz == "storage.modify" || authz == "storage.create"
	}
	return authz == "storage.read"
}

// tokenIsValid returns whether the JWT represented by jwtSerialized is
// valid. Valid means the current time is after the `nbf` ("not before")
// claim and before the `exp` ("expiration") claim.
//
// If valid, the function also returns the expiration time.
func tokenIsValid(jwtSerialized string) (valid bool, expiry time.Time) {
	token, err := jwt.Parse([]byte(jwtSerialized), jwt.WithVerify(false))
	if err != nil {
		log.Warningln("Failed to parse token:", err)
		return
	}

	if err := jwt.Validate(token); err != nil {
		log.Warningln("Token is invalid:", err)
		return false, token.Expiration()
	}

	valid = true
	expiry = token.Expiration()
	return
}
