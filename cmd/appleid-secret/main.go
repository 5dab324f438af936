// Command appleid-secret prints a Sign in with Apple client secret.
package main

import (
	"os"

	"github.com/takimoto3/appleid-secret/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
