package main

import "github.com/oshokin/mc-provisioner/cmd/mc-provisioner/cmd"

func main() {
	cmd.Execute()
}
