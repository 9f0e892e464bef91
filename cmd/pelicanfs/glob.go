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

	"github.com/spf13/cobra"
)

var (
	globCmd = &cobra.Command{
		Use:   "glob {pattern}",
		Short: "List namespace paths matching a wildcard pattern",
		Long: `Glob lists every namespace path matching the pattern. "*" and "?"
match within one path segment, "**" crosses segments, and "[...]"
matches a character class. Quote the pattern to keep the local shell
from expanding it.`,
		Args: cobra.ExactArgs(1),
		RunE: globMain,
	}
)

func init() {
	globCmd.Flags().IntP("maxdepth", "m", -1, "Bound recursive wildcard descent to this many levels (< 1 means unbounded)")
	rootCmd.AddCommand(globCmd)
}

func globMain(cmd *cobra.Command, args []string) error {
	ffs, err := newFilesystem(cmd)
	if err != nil {
		return err
	}

	maxDepth, _ := cmd.Flags().GetInt("maxdepth")
	matches, err := ffs.GlobWithDepth(cmd.Context(), args[0], maxDepth)
	if err != nil {
		return err
	}
	for _, match := range matches {
		fmt.Println(match)
	}
	return nil
}
