// perm-engine is the CLI entry point for the permission batch engine.
package main

import "vmtag/perm-engine/cmd"

func main() {
	cmd.Execute()
}
