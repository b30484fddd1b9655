// Command gitlab-crawler runs the GitLab resource crawler from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/ossf/gitlab-crawler/cmd"
)

func main() {
	o := &cmd.Options{}
	root := cmd.New(o)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
