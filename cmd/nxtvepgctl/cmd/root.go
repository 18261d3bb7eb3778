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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is the CLI's main entry point, exported so nxtvepgctl could be
// extended without touching the subcommands below.
var RootCmd = &cobra.Command{
	Use:   "nxtvepgctl",
	Short: "control and query a running nxtvepgd",
}

var (
	verbose bool
	tcpHost string
	tcpPort int
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().StringVar(&tcpHost, "host", "", "connect over TCP to this host instead of the local Unix socket")
	RootCmd.PersistentFlags().IntVar(&tcpPort, "port", 0, "TCP port to connect to (required with --host)")
}

// ConfigureVerbosity sets log verbosity from the parsed flags. Called by
// every subcommand before doing any work.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// dialTarget resolves the --host/--port flags into the arguments
// dial (and nettransport.Connect behind it) expects.
func dialTarget() (host string, port int, useTCP bool) {
	if tcpHost != "" {
		return tcpHost, tcpPort, true
	}
	return "", 0, false
}

// Execute is the CLI's main entry point.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
