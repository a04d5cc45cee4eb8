// Command orderctl administers orderflow directly against its database: users, groups,
// memberships and quotas, listing orders, and dry runs of the configured hooks.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
