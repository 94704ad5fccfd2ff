package main

import (
	"campaign-signal-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
