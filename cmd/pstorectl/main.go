// Command pstorectl resolves and fetches a single package reference into a
// local content-addressed store, printing progress events as they arrive.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
