// Command linkcheck crawls a site from a seed URL and reports unhealthy pages.
package main

import "github.com/JakeFAU/linkcheck/cmd"

func main() {
	cmd.Execute()
}
