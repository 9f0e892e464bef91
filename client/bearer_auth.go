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
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/studio-b12/gowebdav"
)

// bearerAuth holds the token generator backing WebDAV requests
type bearerAuth struct {
	tokenGen *tokenGenerator
}

// bearerAuthenticator is an Authenticator for bearerAuth
type bearerAuthenticator struct {
	tokenGen *tokenGenerator
}

// NewAuthenticator creates a new bearerAuthenticator
func (b *bearerAuth) NewAuthenticator(body io.Reader) (gowebdav.Authenticator, io.Reader) {
	return &bearerAuthenticator{tokenGen: b.tokenGen}, body
}

// AddAuthenticator is not needed in this case (but required to have in gowebdav)
func (b *bearerAuth) AddAuthenticator(key string, fn gowebdav.AuthFactory) {
}

// Authorize the current request
func (b *bearerAuthenticator) Authorize(c *http.Client, rq *http.Request, path string) error {
	if b.tokenGen == nil {
		return nil
	}
	token, err := b.tokenGen.Get()
	if err != nil {
		log.Debugln("No token available for WebDAV request to", path, ":", err)
		return nil
	}
	rq.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Verify verifies the authentication
func (b *bearerAuthenticator) Verify(c *http.Client, rs *http.Response, path string) (redo bool, err error) {
	if rs.StatusCode == http.StatusUnauthorized {
		log.Errorf("Authorize: %s, %v", path, rs.StatusCode)
	}
	return
}

// Close cleans up all resources
func (b *bearerAuthenticator) Close() error {
	return nil
}

// Clone creates a copy of itself
func (b *bearerAuthenticator) Clone() gowebdav.Authenticator {
	// no copy due to read only access
	return b
}
