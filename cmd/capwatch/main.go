package main

import "vault-capacity-alerts/internal/cli"

func main() {
	cli.Execute()
}
