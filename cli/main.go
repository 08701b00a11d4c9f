package main

import (
	"github.com/BioHazard786/Huddle/cli/cmd"
	"github.com/BioHazard786/Huddle/cli/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
