// Package main is the entry point for the kbic application
package main

import (
	"github.com/openbi/kbic/cmd"
)

func main() {
	cmd.Execute()
}
