package main

import "github.com/mselser95/fill-reconciler/cmd"

func main() {
	cmd.Execute()
}
