/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "ask the running daemon to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		ConfigureVerbosity()
		host, port, useTCP := dialTarget()
		if err := stopDaemon(host, port, useTCP); err != nil {
			log.Errorf("stop: %v", err)
			return err
		}
		fmt.Println(color.GreenString("CLOSE_IND sent"))
		return nil
	},
}
