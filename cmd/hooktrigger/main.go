// Command hooktrigger receives Git provider webhooks and publishes a trigger
// message for every pipeline whose trigger configuration matches.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
