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

package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PelicanPlatform/pelicanfs/client"
	"github.com/PelicanPlatform/pelicanfs/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "pelicanfs",
		Short: "Interact with objects in a Pelican data federation",
		Long: `The pelicanfs client resolves objects in a Pelican data
federation to working cache endpoints and reads them over HTTP,
discovering bearer tokens for protected namespaces as needed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.InitClient()
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				viper.Set("Logging.Level", "Debug")
			}
			return config.InitLogging()
		},
	}
)

func init() {
	flagSet := rootCmd.PersistentFlags()
	flagSet.StringP("federation", "f", "", "Discovery URL of the federation to bind to")
	flagSet.StringP("token", "t", "", "Token file to use for transfers")
	flagSet.StringSliceP("cache", "c", nil, `Preferred cache list; "+" splices in the director's answer`)
	flagSet.Bool("direct", false, "Read from the authoritative origin instead of caches")
	flagSet.BoolP("debug", "d", false, "Enable debug logging")
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// newFilesystem builds a filesystem from the persistent flags. With no
// federation flag the instance binds lazily to the first qualified path.
func newFilesystem(cmd *cobra.Command) (*client.FederatedFilesystem, error) {
	federation, _ := cmd.Flags().GetString("federation")
	tokenLocation, _ := cmd.Flags().GetString("token")
	caches, _ := cmd.Flags().GetStringSlice("cache")
	direct, _ := cmd.Flags().GetBool("direct")

	opts := make([]client.FilesystemOption, 0, 3)
	if tokenLocation != "" {
		opts = append(opts, client.WithTokenLocation(tokenLocation))
	}
	if len(caches) > 0 {
		opts = append(opts, client.WithPreferredCaches(caches))
	}
	if direct {
		opts = append(opts, client.WithDirectReads(true))
	}
	return client.NewFederatedFilesystem(federation, opts...)
}
