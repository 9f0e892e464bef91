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
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/PelicanPlatform/pelicanfs/utils"
)

type (
	XPelHeader interface {
		GetName() string
		ParseRawResponse(*http.Response) error
	}

	// XPelAuth matches the director's X-Pelican-Authorization header,
	// carrying the set of token issuers trusted for the namespace.
	XPelAuth struct {
		Issuers []*url.URL
	}

	// XPelNs matches the director's X-Pelican-Namespace header.
	XPelNs struct {
		Namespace      string // Federation prefix path
		RequireToken   bool   // Whether a token is required for read operations
		CollectionsUrl *url.URL
	}

	// XPelTokGen matches the director's X-Pelican-Token-Generation header,
	// describing how a client should go about acquiring a token.
	XPelTokGen struct {
		Issuers       []*url.URL
		MaxScopeDepth uint
		Strategy      string
		BasePaths     []string
	}

	// ObjectServer is one entry from the director's metalink Link header.
	ObjectServer struct {
		Url      *url.URL
		Priority int
	}

	// DirectorResponse is the parsed form of a director object query.
	DirectorResponse struct {
		ObjectServers []*url.URL // Servers from the Link header, in priority order
		Location      *url.URL   // Content of the Location header, if any
		XPelAuthHdr   XPelAuth
		XPelNsHdr     XPelNs
		XPelTokGenHdr XPelTokGen
	}
)

func (x XPelNs) GetName() string {
	return "X-Pelican-Namespace"
}

func (x *XPelNs) ParseRawResponse(resp *http.Response) error {
	raw := resp.Header.Values(x.GetName())
	if len(raw) == 0 {
		return errors.Errorf("No %s header found.", x.GetName())
	}
	keyDict := utils.HeaderParser(raw[0])
	x.Namespace = keyDict["namespace"]
	x.RequireToken, _ = strconv.ParseBool(keyDict["require-token"])
	if keyDict["collections-url"] != "" {
		x.CollectionsUrl, _ = url.Parse(keyDict["collections-url"])
	}
	return nil
}

func (x XPelAuth) GetName() string {
	return "X-Pelican-Authorization"
}

func (x *XPelAuth) ParseRawResponse(resp *http.Response) error {
	// If the director provides an auth header, raw will have an array of length 1.
	raw := resp.Header.Values(x.GetName())
	if len(raw) > 0 {
		x.Issuers = make([]*url.URL, 0)
		// Can't use utils.HeaderParser because the keys here aren't unique.
		cleaned := strings.ReplaceAll(raw[0], " ", "")
		issuers := strings.Split(cleaned, ",")
		for _, issuer := range issuers {
			issuerUrlStr := strings.TrimPrefix(issuer, "issuer=")
			issuerUrl, err := url.Parse(issuerUrlStr)
			if err != nil {
				return errors.Errorf("Failed to parse issuer URL %s from Director's %s header: %v", issuerUrlStr, x.GetName(), err)
			}
			x.Issuers = append(x.Issuers, issuerUrl)
		}
	}
	return nil
}

func (x XPelTokGen) GetName() string {
	return "X-Pelican-Token-Generation"
}

func (x *XPelTokGen) ParseRawResponse(resp *http.Response) error {
	raw := resp.Header.Values(x.GetName())
	if len(raw) > 0 {
		// Parse issuer, for now assuming a single value but eventually may be multiple
		x.Issuers = make([]*url.URL, 0)
		keyDict := utils.HeaderParser(raw[0])
		if keyDict["issuer"] != "" {
			issuerUrl, err := url.Parse(keyDict["issuer"])
			if err != nil {
				return errors.Errorf("Failed to parse issuer URL %s from Director's %s header: %v", keyDict["issuer"], x.GetName(), err)
			}
			x.Issuers = append(x.Issuers, issuerUrl)
		}

		if depth, exists := keyDict["max-scope-depth"]; exists {
			maxScopeDepth, err := strconv.ParseUint(depth, 10, 32)
			if err != nil {
				return errors.Errorf("Failed to parse max-scope-depth %s from Director's %s header: %v", depth, x.GetName(), err)
			}
			x.MaxScopeDepth = uint(maxScopeDepth)
		}

		x.Strategy = keyDict["strategy"]

		// Right now we assume a single base path, although this may eventually change.
		if basePath, exists := keyDict["base-path"]; exists {
			x.BasePaths = append(x.BasePaths, basePath)
		}
	}
	return nil
}

// ParseMetalink parses the RFC 8288 Link header in a director response
// into the list of object servers, sorted by ascending metalink priority.
// An absent Link header yields an empty list, not an error.
func ParseMetalink(resp *http.Response) (servers []*url.URL, err error) {
	linkHeader := resp.Header.Values("Link")
	if len(linkHeader) == 0 {
		return []*url.URL{}, nil
	}

	entries := make([]ObjectServer, 0)
	for _, linksStr := range strings.Split(linkHeader[0], ",") {
		links := strings.Split(strings.ReplaceAll(linksStr, " ", ""), ";")

		var endpoint string
		// "rel", as defined in the Metalink/HTTP RFC, is also provided by
		// the director but currently unused by the client.
		var pri int
		for _, val := range links {
			if strings.HasPrefix(val, "<") && strings.HasSuffix(val, ">") {
				endpoint = val[1 : len(val)-1]
			} else if strings.HasPrefix(val, "pri=") {
				pri, _ = strconv.Atoi(val[4:])
			}
		}
		if endpoint == "" {
			continue
		}

		endpointUrl, parseErr := url.Parse(endpoint)
		if parseErr != nil {
			return nil, errors.Wrapf(parseErr, "failed to parse object server URL %s from Link header", endpoint)
		}
		entries = append(entries, ObjectServer{Url: endpointUrl, Priority: pri})
	}

	// Making the assumption that the Link header doesn't already provide
	// the servers in order (even though it probably does). This sorts them
	// to ensure we're using the "pri" tag for ordering.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})

	servers = make([]*url.URL, 0, len(entries))
	for _, entry := range entries {
		servers = append(servers, entry.Url)
	}
	return servers, nil
}

// ParseDirectorResponse parses all the client-relevant headers out of a
// director response in one shot.
func ParseDirectorResponse(resp *http.Response) (dirResp DirectorResponse, err error) {
	xPelNs := XPelNs{}
	if err = xPelNs.ParseRawResponse(resp); err != nil {
		return
	}

	xPelAuth := XPelAuth{}
	if err = xPelAuth.ParseRawResponse(resp); err != nil {
		return
	}

	xPelTokGen := XPelTokGen{}
	if err = xPelTokGen.ParseRawResponse(resp); err != nil {
		return
	}

	servers, err := ParseMetalink(resp)
	if err != nil {
		return
	}

	var location *url.URL
	if loc := resp.Header.Get("Location"); loc != "" {
		if location, err = url.Parse(loc); err != nil {
			err = errors.Wrapf(err, "failed to parse Location header %s", loc)
			return
		}
	}

	dirResp = DirectorResponse{
		ObjectServers: servers,
		Location:      location,
		XPelAuthHdr:   xPelAuth,
		XPelNsHdr:     xPelNs,
		XPelTokGenHdr: xPelTokGen,
	}
	return
}
