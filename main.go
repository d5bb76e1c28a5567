// The main package for the batch-crawler executable.
package main

import "github.com/JakeFAU/batch-crawler/cmd"

func main() {
	cmd.Execute()
}
