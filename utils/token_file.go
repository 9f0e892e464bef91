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

package utils

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// GetTokenFromFile reads a bearer token out of the given file. The file
// is either a JSON document with an access_token member (the WLCG token
// file format) or the raw token itself. Whitespace is trimmed; a file
// with no token content is an error.
func GetTokenFromFile(tokenLocation string) (string, error) {
	contents, err := os.ReadFile(tokenLocation)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read token file %s", tokenLocation)
	}

	trimmed := strings.TrimSpace(string(contents))
	if trimmed == "" {
		return "", errors.Errorf("token file %s is empty", tokenLocation)
	}

	tokenParsed := struct {
		AccessToken string `json:"access_token"`
	}{}
	if err := json.Unmarshal([]byte(trimmed), &tokenParsed); err == nil {
		if tokenParsed.AccessToken != "" {
			return tokenParsed.AccessToken, nil
		}
		log.Debugln("JSON token file", tokenLocation, "has no access_token member; treating contents as a raw token")
		return trimmed, nil
	}
	log.Debugln("Token file", tokenLocation, "is not JSON; treating contents as a raw token")

	return trimmed, nil
}
