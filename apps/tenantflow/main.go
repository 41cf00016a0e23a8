package main

import "github.com/hudsor01/tenant-flow-sub014/internal/cli"

func main() {
	cli.Execute()
}
