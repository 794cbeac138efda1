package main

import "github.com/skylinehq/skyline/services/controlplane/cli"

func main() {
	cli.Execute()
}
