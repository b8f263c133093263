// Command courseimport loads course and lesson CSV exports into the course
// store, either once from the command line or behind an HTTP server.
package main

func main() {
	Execute()
}
