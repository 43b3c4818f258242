package main

import "github.com/gmcnicol/pairtrader/cmd"

func main() {
	cmd.Execute()
}
