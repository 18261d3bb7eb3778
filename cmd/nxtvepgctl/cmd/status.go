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
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tomzo/nxtvepgd/wire"
)

func init() {
	RootCmd.AddCommand(statusCmd)
}

// statusCmd's "acqstat" alias matches the wire protocol's own query name
// (wire.TextQueryACQSTAT), since operators scripting against the daemon
// tend to know that spelling.
var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"acqstat"},
	Short:   "print the daemon's acquisition status",
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ConfigureVerbosity()
	host, port, useTCP := dialTarget()
	reply, err := textQuery(host, port, useTCP, wire.TextQueryACQSTAT)
	if err != nil {
		log.Errorf("status: %v", err)
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	for _, line := range strings.Split(strings.TrimRight(reply, "\n"), "\n") {
		field, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		table.Append([]string{field, colorizeStatusValue(field, value)})
	}
	table.Render()
	return nil
}

// colorizeStatusValue flags the handful of fields an operator most wants
// to notice at a glance: acquisition sitting off/passive, or any lost
// page/block counter that isn't zero.
func colorizeStatusValue(field, value string) string {
	switch field {
	case "Acq mode":
		if value == "0" {
			return color.YellowString(value)
		}
	case "Passive reason":
		if value != "0" {
			return color.YellowString(value)
		}
	case "TTX lost/got pages", "TTX lost/got pkg", "EPG dropped/got blocks", "EPG blanked/got chars":
		if lost, _, ok := strings.Cut(value, "/"); ok && lost != "0" {
			return color.RedString(value)
		}
	}
	return value
}
