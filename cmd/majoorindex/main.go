// Command majoorindex is the process bootstrap for the asset indexing
// and browsing backend: it loads configuration, wires components A
// through H into an httpapi.App, and serves the HTTP surface (I) until
// signalled to stop. Grounded on marmos91-dittofs/cmd/dittofs/main.go's
// command dispatch shape, trimmed to this system's scope (no adapters,
// no user/group administration — those are the teacher's NFS/SMB
// concerns, not this system's).
package main

import (
	"fmt"
	"os"

	"github.com/majoor/assetindex/cmd/majoorindex/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
