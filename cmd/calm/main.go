// Package main is the entry point for calm.
package main

func main() {
	Execute()
}
