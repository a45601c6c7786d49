// Command stockdb maintains a per-ticker intraday stock database: it
// downloads and updates records, checks their health and converts them to
// other formats.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
