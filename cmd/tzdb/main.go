// Command tzdb imports, archives, inspects and serves time zone databases.
package main

import (
	"context"
	"os"

	"github.com/ngrash/go-tzdb/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
