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

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/PelicanPlatform/pelicanfs/server_structs"
)

const directorOriginApiPath = "/api/v1.0/director/origin"

// directorClient issues object, origin, and collection-listing queries
// against one federation's director. Redirects are never followed; the
// director's redirect response IS the answer.
type directorClient struct {
	directorUrl *url.URL
	httpClient  *http.Client
	userAgent   string
}

func newDirectorClient(directorEndpoint string, transport http.RoundTripper, userAgent string) (*directorClient, error) {
	directorUrl, err := url.Parse(directorEndpoint)
	if err != nil {
		return nil, InvalidMetadataErr.Wrap(errors.Wrapf(err, "failed to parse director endpoint %s", directorEndpoint))
	}
	if directorUrl.Host == "" {
		return nil, InvalidMetadataErr.Wrap(errors.Errorf("director endpoint %s has no host", directorEndpoint))
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &directorClient{
		directorUrl: directorUrl,
		httpClient:  client,
		userAgent:   userAgent,
	}, nil
}

func (dc *directorClient) do(ctx context.Context, method string, queryUrl *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, queryUrl.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s request for %s", method, queryUrl)
	}
	req.Header.Set("User-Agent", dc.userAgent)

	log.Debugln("Querying director at", queryUrl.String(), "with method", method)
	resp, err := dc.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query the director at %s", queryUrl)
	}
	// The body carries no information the client uses; the metalink and
	// namespace data all live in the headers.
	resp.Body.Close()
	return resp, nil
}

// queryObject asks the director which object servers hold objectPath.
func (dc *directorClient) queryObject(ctx context.Context, objectPath string) (server_structs.DirectorResponse, error) {
	queryUrl := *dc.directorUrl
	queryUrl.Path = objectPath

	resp, err := dc.do(ctx, http.MethodGet, &queryUrl)
	if err != nil {
		return server_structs.DirectorResponse{}, err
	}
	if resp.StatusCode >= 400 {
		return server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(
			errors.Errorf("director returned status %d for object %s", resp.StatusCode, objectPath))
	}

	dirResp, err := server_structs.ParseDirectorResponse(resp)
	if err != nil {
		return server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(err)
	}
	return dirResp, nil
}

// queryOrigin asks the director for the authoritative origin serving
// objectPath, reading the answer out of the Location header.
func (dc *directorClient) queryOrigin(ctx context.Context, objectPath string) (*url.URL, server_structs.DirectorResponse, error) {
	queryUrl := *dc.directorUrl
	queryUrl.Path = directorOriginApiPath + objectPath

	resp, err := dc.do(ctx, http.MethodGet, &queryUrl)
	if err != nil {
		return nil, server_structs.DirectorResponse{}, err
	}
	if resp.StatusCode >= 400 {
		return nil, server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(
			errors.Errorf("director returned status %d for origin query %s", resp.StatusCode, objectPath))
	}

	dirResp, err := server_structs.ParseDirectorResponse(resp)
	if err != nil {
		return nil, server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(err)
	}
	// No Location means the director knows of no origin for the object
	if dirResp.Location == nil {
		return nil, server_structs.DirectorResponse{}, NoAvailableSourceErr.Wrap(
			errors.Errorf("director origin query for %s returned no Location header", objectPath))
	}
	return dirResp.Location, dirResp, nil
}

// queryListing asks the director which endpoint can enumerate the
// collection at objectPath. Listings must hit an origin capable of
// directory enumeration, so this is a distinct query from queryObject.
func (dc *directorClient) queryListing(ctx context.Context, objectPath string) (*url.URL, server_structs.DirectorResponse, error) {
	queryUrl := *dc.directorUrl
	queryUrl.Path = objectPath

	resp, err := dc.do(ctx, "PROPFIND", &queryUrl)
	if err != nil {
		return nil, server_structs.DirectorResponse{}, err
	}
	if resp.StatusCode >= 400 {
		return nil, server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(
			errors.Errorf("director returned status %d for listing query %s", resp.StatusCode, objectPath))
	}

	if len(resp.Header.Values("Link")) == 0 {
		return nil, server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(
			errors.Errorf("director listing query for %s returned no Link header", objectPath))
	}

	dirResp, err := server_structs.ParseDirectorResponse(resp)
	if err != nil {
		return nil, server_structs.DirectorResponse{}, BadDirectorResponseErr.Wrap(err)
	}
	if len(dirResp.ObjectServers) == 0 {
		return nil, server_structs.DirectorResponse{}, NoAvailableSourceErr.Wrap(
			errors.Errorf("director listing query for %s returned an empty endpoint list", objectPath))
	}
	return dirResp.ObjectServers[0], dirResp, nil
}
