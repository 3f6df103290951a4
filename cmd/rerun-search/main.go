// Command rerun-search searches datasets and prints the results as tables.
package main

import (
	"github.com/ErakhtinB/rerun/internal/cli"
)

func main() {
	cli.Execute()
}
