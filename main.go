package main

import (
	"github.com/luma/sockrpc/cmd"
)

func main() {
	cmd.Execute()
}
