// Command registry runs the registry's serve and garbage-collect
// subcommands, matching the teacher's cmd/registry/main.go entry point.
package main

import (
	"github.com/distribution-core/registry/registry"
)

func main() {
	if err := registry.RootCmd.Execute(); err != nil {
		panic(err)
	}
}
