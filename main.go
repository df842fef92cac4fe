package main

import (
	"os"

	"github.com/supporttools/BackupFlow/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
