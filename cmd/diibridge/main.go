// Package main provides the diibridge command, which connects an RVFI-DII
// test generator to the built-in RV32I reference core.
package main

func main() {
	Execute()
}
