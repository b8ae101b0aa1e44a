package main

import (
	"github.com/RiskSense-Ops/tmux/cmd"
)

func main() {
	cmd.Execute()
}
