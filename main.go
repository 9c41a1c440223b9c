package main

import "github.com/ValentinKolb/arangovst/cmd"

func main() {
	cmd.Execute()
}
