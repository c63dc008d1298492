// linkwatch connects to a WebSocket endpoint through the resilient link and
// prints every lifecycle event and inbound frame to the console.
// Usage: go run ./cmd/linkwatch --config configs/linkwatch.example.yaml
//
// Optional environment variables:
//
//	LINKWATCH_CONFIG  - Path to the config file
//	LINKWATCH_ADDRESS - Overrides link.address
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
