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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderParser(t *testing.T) {
	header1 := "namespace=/foo/bar, require-token=True, collections-url=https://origin:8444"
	newMap1 := HeaderParser(header1)

	assert.Equal(t, "/foo/bar", newMap1["namespace"])
	assert.Equal(t, "True", newMap1["require-token"])
	assert.Equal(t, "https://origin:8444", newMap1["collections-url"])

	header2 := ""
	newMap2 := HeaderParser(header2)
	assert.Equal(t, map[string]string{}, newMap2)
}

func TestGetTokenFromFile(t *testing.T) {
	dirName := t.TempDir()

	writeFile := func(name, content string) string {
		path := filepath.Join(dirName, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		return path
	}

	t.Run("RawToken", func(t *testing.T) {
		path := writeFile("raw", "  my-raw-token\n")
		token, err := GetTokenFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "my-raw-token", token)
	})

	t.Run("JsonToken", func(t *testing.T) {
		path := writeFile("json", `{"access_token": "my-json-token", "token_type": "bearer"}`)
		token, err := GetTokenFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "my-json-token", token)
	})

	t.Run("JsonWithoutAccessToken", func(t *testing.T) {
		// JSON without an access_token member falls back to the raw contents
		path := writeFile("json-bad", `{"refresh_token": "abc"}`)
		token, err := GetTokenFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"refresh_token": "abc"}`, token)
	})

	t.Run("EmptyFile", func(t *testing.T) {
		path := writeFile("empty", "   \n\t")
		_, err := GetTokenFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := GetTokenFromFile(filepath.Join(dirName, "does-not-exist"))
		require.Error(t, err)
	})
}
