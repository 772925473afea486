// Package main is the operator CLI: schema migrations, a one-off announcement
// refresh and development tokens.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
