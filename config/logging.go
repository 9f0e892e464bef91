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

package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// InitLogging sets the logrus level from the Logging.Level parameter.
func InitLogging() error {
	InitClient()

	levelStr := viper.GetString("Logging.Level")
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		return errors.Wrapf(err, "failed to parse the log level %s", levelStr)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true})
	return nil
}
