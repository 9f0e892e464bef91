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
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	catCmd = &cobra.Command{
		Use:   "cat {object}",
		Short: "Write an object's contents to standard output",
		Args:  cobra.ExactArgs(1),
		RunE:  catMain,
	}
)

func init() {
	rootCmd.AddCommand(catCmd)
}

func catMain(cmd *cobra.Command, args []string) error {
	ffs, err := newFilesystem(cmd)
	if err != nil {
		return err
	}

	reader, err := ffs.Open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(os.Stdout, reader)
	return err
}
