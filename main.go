package main

import "github.com/varalys/blockscrub/cmd/blockscrub"

func main() { blockscrub.Execute() }
