// Package main is the entry point for the receiptd CLI.
package main

import "github.com/voltgrid/receipt-engine/cli"

func main() {
	cli.Execute()
}
