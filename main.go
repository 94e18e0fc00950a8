// The main package for the scraper executable.
package main

import (
	"os"

	"github.com/JakeFAU/research-scraper/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
