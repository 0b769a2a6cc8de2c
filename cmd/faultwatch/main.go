package main

import (
	"os"

	"github.com/faultwatch/faultwatch/internal/cmd"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(cmd.Execute(version))
}
