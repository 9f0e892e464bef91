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
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/studio-b12/gowebdav"

	"github.com/PelicanPlatform/pelicanfs/config"
)

// FileInfo describes one federation object or collection, with the
// namespace-relative name.
type FileInfo struct {
	Name         string
	Size         int64
	ModTime      time.Time
	IsCollection bool
}

// webdavLister is the slice of the WebDAV client the recursive walk
// needs; tests substitute an in-memory implementation.
type webdavLister interface {
	ReadDir(path string) ([]os.FileInfo, error)
}

// httpFilesystem is the HTTP collaborator the resolution engine delegates
// to once an endpoint has been picked. Data operations go over plain
// GET/HEAD; collection enumeration goes over WebDAV PROPFIND.
type httpFilesystem struct {
	client    *http.Client
	userAgent string
}

func newHttpFilesystem(transport http.RoundTripper, userAgent string) *httpFilesystem {
	return &httpFilesystem{
		client:    &http.Client{Transport: transport},
		userAgent: userAgent,
	}
}

// createWebDavClient creates a WebDAV client against the collections URL,
// used for listings and recursive walks.
func createWebDavClient(collectionsUrl *url.URL, tokenGen *tokenGenerator, userAgent string, transport http.RoundTripper) *gowebdav.Client {
	auth := &bearerAuth{tokenGen: tokenGen}
	client := gowebdav.NewAuthClient(collectionsUrl.String(), auth)
	client.SetHeader("User-Agent", userAgent)
	if transport == nil {
		transport = config.GetTransport()
	}
	client.SetTransport(transport)
	return client
}

func (hf *httpFilesystem) newRequest(ctx context.Context, method string, resolvedUrl *url.URL, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, resolvedUrl.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s request for %s", method, resolvedUrl)
	}
	req.Header.Set("User-Agent", hf.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// open issues a GET and hands the body back to the caller, who owns
// closing it.
func (hf *httpFilesystem) open(ctx context.Context, resolvedUrl *url.URL, token string) (io.ReadCloser, error) {
	req, err := hf.newRequest(ctx, http.MethodGet, resolvedUrl, token)
	if err != nil {
		return nil, err
	}
	resp, err := hf.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", resolvedUrl)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, errors.Errorf("endpoint returned status %d for %s", resp.StatusCode, resolvedUrl)
	}
	return resp.Body, nil
}

// cat reads the whole object into memory.
func (hf *httpFilesystem) cat(ctx context.Context, resolvedUrl *url.URL, token string) ([]byte, error) {
	body, err := hf.open(ctx, resolvedUrl, token)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// get downloads the object to the local path.
func (hf *httpFilesystem) get(ctx context.Context, resolvedUrl *url.URL, token string, localPath string) (int64, error) {
	body, err := hf.open(ctx, resolvedUrl, token)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, errors.Wrapf(err, "failed to create directory for %s", localPath)
	}
	local, err := os.Create(localPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create local file %s", localPath)
	}
	defer local.Close()

	written, err := io.Copy(local, body)
	if err != nil {
		return written, errors.Wrapf(err, "failed while downloading %s", resolvedUrl)
	}
	log.Debugln("Downloaded", written, "bytes from", resolvedUrl.String(), "to", localPath)
	return written, nil
}

// stat issues a HEAD against the resolved object URL.
func (hf *httpFilesystem) stat(ctx context.Context, resolvedUrl *url.URL, token string) (FileInfo, error) {
	req, err := hf.newRequest(ctx, http.MethodHead, resolvedUrl, token)
	if err != nil {
		return FileInfo{}, err
	}
	resp, err := hf.client.Do(req)
	if err != nil {
		return FileInfo{}, errors.Wrapf(err, "failed to stat %s", resolvedUrl)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return FileInfo{}, errors.Errorf("endpoint returned status %d for %s", resp.StatusCode, resolvedUrl)
	}

	info := FileInfo{
		Name: resolvedUrl.Path,
		Size: resp.ContentLength,
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		if modTime, err := http.ParseTime(lastModified); err == nil {
			info.ModTime = modTime
		}
	}
	return info, nil
}

// exists reports whether a HEAD against the resolved URL succeeds.
func (hf *httpFilesystem) exists(ctx context.Context, resolvedUrl *url.URL, token string) (bool, error) {
	req, err := hf.newRequest(ctx, http.MethodHead, resolvedUrl, token)
	if err != nil {
		return false, err
	}
	resp, err := hf.client.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check existence of %s", resolvedUrl)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		return false, errors.Errorf("endpoint returned status %d for %s", resp.StatusCode, resolvedUrl)
	}
	return true, nil
}
