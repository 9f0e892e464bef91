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
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get {object} [destination]",
		Short: "Download an object to a local path",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  getMain,
	}
)

func init() {
	rootCmd.AddCommand(getCmd)
}

func getMain(cmd *cobra.Command, args []string) error {
	ffs, err := newFilesystem(cmd)
	if err != nil {
		return err
	}

	object := args[0]
	localPath := path.Base(object)
	if len(args) == 2 {
		localPath = args[1]
	}
	localPath = filepath.Clean(localPath)

	written, err := ffs.Get(cmd.Context(), object, localPath)
	if err != nil {
		return err
	}
	log.Infoln("Downloaded", written, "bytes to", localPath)
	return nil
}
