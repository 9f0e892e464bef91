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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PelicanPlatform/pelicanfs/config"
)

var (
	tokenCmd = &cobra.Command{
		Use:   "token {object}",
		Short: "Discover and print the bearer token for an object",
		Args:  cobra.ExactArgs(1),
		RunE:  tokenMain,
	}
)

func init() {
	tokenCmd.Flags().BoolP("write", "w", false, "Discover a token usable for writes")
	rootCmd.AddCommand(tokenCmd)
}

func tokenMain(cmd *cobra.Command, args []string) error {
	ffs, err := newFilesystem(cmd)
	if err != nil {
		return err
	}

	operation := config.TokenRead
	if write, _ := cmd.Flags().GetBool("write"); write {
		operation = config.TokenWrite
	}

	token, err := ffs.DiscoverToken(cmd.Context(), args[0], operation)
	if err != nil {
		return err
	}
	if token == "" {
		log.Infoln("The object's namespace does not require a token")
		return nil
	}
	fmt.Println(token)
	return nil
}
