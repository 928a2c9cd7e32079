// Package main is the build smoke target for the social core library.
// The real entry points are cmd/mobile (cgo c-shared) and cmd/server;
// this binary only proves the module links and reports its version.
package main

import "fmt"

// Version is stamped by release builds via -ldflags.
var Version = "0.1.0"

func banner() string {
	return fmt.Sprintf("CPC Social Core v%s\n", Version)
}

func main() {
	fmt.Print(banner())
}
