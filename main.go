package main

import "viewflow/cmd"

func main() {
	cmd.Execute()
}
