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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	statCmd = &cobra.Command{
		Use:   "stat {object}",
		Short: "Show an object's size and modification time",
		Args:  cobra.ExactArgs(1),
		RunE:  statMain,
	}
)

func init() {
	statCmd.Flags().BoolP("json", "j", false, "Print results in JSON format")
	rootCmd.AddCommand(statCmd)
}

func statMain(cmd *cobra.Command, args []string) error {
	ffs, err := newFilesystem(cmd)
	if err != nil {
		return err
	}

	info, err := ffs.Stat(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJson, _ := cmd.Flags().GetBool("json"); asJson {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}

	fmt.Println("Name:", info.Name)
	fmt.Println("Size:", info.Size)
	if !info.ModTime.IsZero() {
		fmt.Println("Modified:", info.ModTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}
