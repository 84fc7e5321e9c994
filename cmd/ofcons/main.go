// Ofcons runs consensus experiments.
package main

import "github.com/relab/ofcons/internal/cli"

func main() {
	cli.Execute()
}
