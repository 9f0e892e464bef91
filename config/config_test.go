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
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDefaults(t *testing.T) {
	InitClient()

	assert.Equal(t, 15*time.Minute, viper.GetDuration("Client.NamespaceCacheTTL"))
	assert.Equal(t, 50, viper.GetInt("Client.NamespaceCacheSize"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("Client.ProbeTimeout"))
	assert.Equal(t, 5*time.Minute, viper.GetDuration("Client.TokenHelperTimeout"))
	assert.False(t, viper.GetBool("Client.DirectReads"))
}

func TestTokenOperation(t *testing.T) {
	assert.True(t, TokenWrite.IsWrite())
	assert.True(t, TokenSharedWrite.IsWrite())
	assert.False(t, TokenRead.IsWrite())
	assert.False(t, TokenSharedRead.IsWrite())

	assert.True(t, TokenSharedRead.IsShared())
	assert.True(t, TokenSharedWrite.IsShared())
	assert.False(t, TokenRead.IsShared())
	assert.False(t, TokenWrite.IsShared())
}

func TestGetTransport(t *testing.T) {
	transport := GetTransport()
	require.NotNil(t, transport)
	assert.Equal(t, 30, transport.MaxIdleConns)

	// Transport is shared
	assert.Same(t, transport, GetTransport())
}
