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
	"sync"
	"time"

	"github.com/spf13/viper"
)

type (
	// TokenOperation is the kind of storage access a token must authorize.
	TokenOperation int

	// TokenGenerationOpts tells the credential engine what a token is for.
	TokenGenerationOpts struct {
		Operation TokenOperation
	}
)

const (
	TokenRead TokenOperation = iota
	TokenWrite
	TokenSharedRead
	TokenSharedWrite
)

// IsShared reports whether the operation covers a whole collection, in
// which case token resource paths must match the namespace exactly.
func (op TokenOperation) IsShared() bool {
	return op == TokenSharedRead || op == TokenSharedWrite
}

// IsWrite reports whether the operation mutates data.
func (op TokenOperation) IsWrite() bool {
	return op == TokenWrite || op == TokenSharedWrite
}

var onceClient sync.Once

// InitClient sets the default values for all the client parameters.
// Safe to call more than once; defaults are set a single time and any
// values the user has already bound take precedence.
func InitClient() {
	onceClient.Do(func() {
		viper.SetDefault("Client.NamespaceCacheTTL", 15*time.Minute)
		viper.SetDefault("Client.NamespaceCacheSize", 50)
		viper.SetDefault("Client.ProbeTimeout", 5*time.Second)
		viper.SetDefault("Client.TokenHelperTimeout", 5*time.Minute)
		viper.SetDefault("Client.PreferredCaches", []string{})
		viper.SetDefault("Client.DirectReads", false)
		viper.SetDefault("Client.TokenLocation", "")

		viper.SetDefault("Logging.Level", "Error")

		viper.SetDefault("Transport.DialerTimeout", 10*time.Second)
		viper.SetDefault("Transport.DialerKeepAlive", 30*time.Second)
		viper.SetDefault("Transport.MaxIdleConns", 30)
		viper.SetDefault("Transport.IdleConnTimeout", 90*time.Second)
		viper.SetDefault("Transport.TLSHandshakeTimeout", 15*time.Second)
		viper.SetDefault("Transport.ExpectContinueTimeout", 1*time.Second)
		viper.SetDefault("Transport.ResponseHeaderTimeout", 10*time.Second)
		viper.SetDefault("TLSSkipVerify", false)

		viper.SetEnvPrefix("pelican")
		viper.AutomaticEnv()
	})
}
