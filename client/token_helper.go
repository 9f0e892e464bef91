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
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/PelicanPlatform/pelicanfs/config"
	"github.com/PelicanPlatform/pelicanfs/pelican_url"
)

const tokenHelperName = "pelican"

// Three dot-delimited base64url segments, the shape of a serialized JWT.
var jwtPattern = regexp.MustCompile(`[A-Za-z0-9_-]{2,}\.[A-Za-z0-9_-]{2,}\.[A-Za-z0-9_-]{2,}`)

// helperAvailable reports whether the interactive helper can run: the
// executable must be on the search path and stdin must be a terminal for
// the user to complete the authorization flow.
func helperAvailable() (string, bool) {
	helperPath, err := exec.LookPath(tokenHelperName)
	if err != nil {
		log.Debugln("Token helper executable not found on PATH; skipping interactive acquisition")
		return "", false
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Debugln("Standard input is not a terminal; skipping interactive token acquisition")
		return "", false
	}
	return helperPath, true
}

// acquireTokenInteractively runs the external helper's token-fetch flow
// for the destination, enforcing a wall-clock timeout after which the
// subprocess is killed. The token is extracted from the helper's output.
func acquireTokenInteractively(dest *pelican_url.PelicanURL, operation config.TokenOperation) (string, error) {
	helperPath, ok := helperAvailable()
	if !ok {
		return "", nil
	}

	config.InitClient()
	timeout := viper.GetDuration("Client.TokenHelperTimeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	opFlag := "-r"
	if operation.IsWrite() {
		opFlag = "-w"
	}

	log.Debugln("Invoking token helper", helperPath, "for", dest.String())
	cmd := exec.CommandContext(ctx, helperPath, "token", "fetch", dest.String(), opFlag)

	// The user completes the flow on their terminal; the helper's output
	// is captured for token extraction while still being shown to them.
	var output bytes.Buffer
	cmd.Stdin = os.Stdin
	cmd.Stdout = io.MultiWriter(&output, os.Stderr)
	cmd.Stderr = io.MultiWriter(&output, os.Stderr)

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Errorf("token helper timed out after %s and was killed", timeout)
		}
		return "", errors.Wrap(err, "token helper exited with an error")
	}

	token := jwtPattern.FindString(output.String())
	if token == "" {
		return "", errors.New("token helper produced no token-shaped output")
	}
	return token, nil
}
