package main

import "github.com/Trustflow-Network-Labs/signing-relay/internal/cmd"

func main() {
	cmd.Execute()
}
