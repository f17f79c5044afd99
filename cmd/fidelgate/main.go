package main

import "github.com/dcavalli/fidelgate/cmd/fidelgate/cmd"

func main() {
	cmd.Execute()
}
