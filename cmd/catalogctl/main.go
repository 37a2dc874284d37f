// Command catalogctl runs catalog maintenance from the shell: migrations,
// bulk imports and exports, and category housekeeping. It talks to the
// same database as the server and uses the same configuration.
package main

func main() {
	execute()
}
