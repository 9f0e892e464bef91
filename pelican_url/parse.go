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
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
)

type (
	// PelicanURL represents a parsed pelican:// or osdf:// object URL.
	// The Host is the federation discovery host; the Path is the
	// federation object path.
	PelicanURL struct {
		Scheme   string
		Host     string
		Path     string
		RawQuery string

		FedInfo FederationDiscovery
	}

	SchemeError struct {
		Scheme string
	}
)

const (
	OsdfScheme    string = "osdf"
	PelicanScheme string = "pelican"

	PelicanDiscoveryPath string = "/.well-known/pelican-configuration"
)

var ValidSchemes = []string{OsdfScheme, PelicanScheme}

func (e *SchemeError) Error() string {
	return fmt.Sprintf("scheme '%s' not understood. If present, schemes must be one of '%s' or '%s'", e.Scheme, PelicanScheme, OsdfScheme)
}

func (p *PelicanURL) String() string {
	u := &url.URL{
		Scheme:   p.Scheme,
		Host:     p.Host,
		Path:     p.Path,
		RawQuery: p.RawQuery,
	}
	return u.String()
}

func (p *PelicanURL) GetRawUrl() *url.URL {
	return &url.URL{
		Scheme:   p.Scheme,
		Host:     p.Host,
		Path:     p.Path,
		RawQuery: p.RawQuery,
	}
}

// DiscoveryUrl returns the canonical federation discovery URL for this
// object URL, e.g. pelican://osg-htc.org/ for pelican://osg-htc.org/foo/bar.
// A filesystem instance binds to exactly one such URL.
func (p *PelicanURL) DiscoveryUrl() string {
	u := &url.URL{
		Scheme: PelicanScheme,
		Host:   p.Host,
		Path:   "/",
	}
	return u.String()
}

// Check whether the provided scheme is one Pelican understands
func schemeUnderstood(scheme string) bool {
	for _, validScheme := range ValidSchemes {
		if scheme == validScheme {
			return true
		}
	}
	return false
}

// Given an OSDF URL like osdf://foo/bar, normalize it to osdf:///foo/bar.
// OSDF URLs carry no host of their own; the federation host is the
// well-known OSDF discovery host.
func normalizeOSDFTripleSlash(parsedUrl *url.URL) (err error) {
	if parsedUrl.Scheme == OsdfScheme && parsedUrl.Host != "" {
		var objPath string
		objPath, err = url.JoinPath(parsedUrl.Host, parsedUrl.Path)
		if err != nil {
			err = errors.Wrapf(err, "failed to normalize osdf url %s", parsedUrl.String())
			return
		}
		parsedUrl.Path = path.Join("/", objPath)
		parsedUrl.Host = ""
	}
	return
}

// Parse turns a remote object reference into a PelicanURL. Accepted forms:
//  1. pelican://<federation-host>/<object-path>
//  2. osdf:///<object-path> (federation host implied by the OSDF default)
//  3. osdf://<object-path> (user forgot the triple slash; normalized to 2)
//  4. <federation-host>/<object-path> (schemeless; treated as pelican://)
//
// A bare federation-relative path ("/foo/bar") is not a PelicanURL and is
// rejected; callers pass those directly to the filesystem operations.
func Parse(rawUrl string) (*PelicanURL, error) {
	p := &PelicanURL{}
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return nil, err
	}

	// Handle case 4 -- a schemeless "host/path" reference.
	if parsedUrl.Scheme == "" {
		if strings.HasPrefix(rawUrl, "/") {
			return nil, errors.New("federation-relative paths cannot be parsed as a Pelican URL")
		}
		parsedUrl, err = url.Parse(PelicanScheme + "://" + rawUrl)
		if err != nil {
			return nil, err
		}
	}

	if !schemeUnderstood(parsedUrl.Scheme) {
		return nil, &SchemeError{Scheme: parsedUrl.Scheme}
	}

	if parsedUrl.Scheme == OsdfScheme {
		if err = normalizeOSDFTripleSlash(parsedUrl); err != nil {
			return nil, err
		}
		parsedUrl.Host = OsdfDiscoveryHost
	} else if parsedUrl.Host == "" {
		return nil, errors.New(fmt.Sprintf("pelican URL '%s' is invalid because it has no host", parsedUrl.String()))
	}

	p.Scheme = PelicanScheme
	p.Host = parsedUrl.Host
	p.Path = parsedUrl.Path
	p.RawQuery = parsedUrl.RawQuery

	return p, nil
}
