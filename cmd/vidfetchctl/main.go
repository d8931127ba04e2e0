package main

import (
	"github.com/vidfetch/vidfetch/cmd/vidfetchctl/cmd"
	"github.com/vidfetch/vidfetch/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	cmd.Execute()
}
