package main

import (
	"os"

	_ "github.com/AnhTuanDangJT/FinStep-sub000/src/admintools"
	_ "github.com/AnhTuanDangJT/FinStep-sub000/src/migration"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/website"
)

func main() {
	if err := website.Command.Execute(); err != nil {
		os.Exit(1)
	}
}
