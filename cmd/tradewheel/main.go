package main

import (
	"github.com/tradewheel/engine/internal/cli"
)

func main() {
	cli.Execute()
}
