// Command fluxkit scans, recovers, and converts flux-level floppy disk
// images via a USB flux controller. See the cmd package for the verbs.
package main

import "github.com/sergev/fluxkit/cmd"

func main() {
	cmd.Execute()
}
