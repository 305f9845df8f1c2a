// tyb-uninstall removes the tynkerbase agent from a machine.
//
// It deletes the agent binary and install directory if present, then asks
// before deleting the projects root:
//
//	$ sudo tyb-uninstall
//	Do you also want to uninstall all your tynkerbase projects? (y/n)  n
//
// Any deletion failure aborts the run with a non-zero exit status.
package main

import (
	"os"

	"github.com/akneni/tynkerbase-uninstall/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
