package main

import "github.com/sunbk201/tilespoof/cmd"

func main() {
	cmd.Execute()
}
