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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tomzo/nxtvepgd/wire"
)

func init() {
	RootCmd.AddCommand(pidCmd)
}

var pidCmd = &cobra.Command{
	Use:   "pid",
	Short: "print the pid of the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ConfigureVerbosity()
		host, port, useTCP := dialTarget()
		reply, err := textQuery(host, port, useTCP, wire.TextQueryPID)
		if err != nil {
			log.Errorf("pid: %v", err)
			return err
		}
		var pid int
		if _, err := fmt.Sscanf(reply, "PID %d", &pid); err != nil {
			return fmt.Errorf("parsing PID reply %q: %w", reply, err)
		}
		fmt.Println(pid)
		return nil
	},
}
