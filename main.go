package main

import (
	"github.com/Spinkelben/MarketDash/cmd"
)

func main() {
	cmd.Execute()
}
