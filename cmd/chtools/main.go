// Command chtools renders query templates, converts ClickHouse
// configuration between XML and YAML, and runs queries and checks against
// a ClickHouse server.
package main

import "github.com/byte4ever/chcommon/internal/cli"

func main() {
	cli.Execute()
}
