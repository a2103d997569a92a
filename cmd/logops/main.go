package main

import "github.com/dbsmedya/logops/cmd/logops/cmd"

func main() {
	cmd.Execute()
}
