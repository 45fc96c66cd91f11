// Command gatewayd runs the gateway's resilience core: a circuit-broken,
// reconnecting, rate-limited HTTP front for an append-only broker.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
