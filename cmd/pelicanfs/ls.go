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
	lsCmd = &cobra.Command{
		Use:   "ls {object}",
		Short: "List objects in a federation namespace",
		Args:  cobra.ExactArgs(1),
		RunE:  listMain,
	}
)

func init() {
	flagSet := lsCmd.Flags()
	flagSet.BoolP("long", "L", false, "Include extended information")
	flagSet.BoolP("collectionsonly", "C", false, "List collections only")

	rootCmd.AddCommand(lsCmd)
}

func listMain(cmd *cobra.Command, args []string) error {
	ffs, err := newFilesystem(cmd)
	if err != nil {
		return err
	}

	long, _ := cmd.Flags().GetBool("long")
	collectionsOnly, _ := cmd.Flags().GetBool("collectionsonly")

	entries, err := ffs.Ls(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if collectionsOnly && !entry.IsCollection {
			continue
		}
		if long {
			kind := "object"
			if entry.IsCollection {
				kind = "collection"
			}
			fmt.Printf("%-10s %12d %s %s\n", kind, entry.Size, entry.ModTime.Format("2006-01-02 15:04:05"), entry.Name)
		} else {
			fmt.Println(entry.Name)
		}
	}
	return nil
}
