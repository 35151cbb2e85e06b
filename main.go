package main

import "github.com/theirongolddev/qiprof/cmd"

func main() {
	cmd.Execute()
}
