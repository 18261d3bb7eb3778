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

// Command nxtvepgctl is the CLI companion to nxtvepgd: it talks to a
// running daemon over the same wire protocol's text-query mode to report
// acquisition status, fetch the daemon's pid, and request a clean
// shutdown.
package main

import "github.com/tomzo/nxtvepgd/cmd/nxtvepgctl/cmd"

func main() {
	cmd.Execute()
}
