// migrate applies or rolls back the embedded SQL migrations: go run ./cmd/migrate -direction up
package main

import (
	"flag"
	"fmt"
	"os"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	list := flag.Bool("list", false, "Print embedded migration files and exit")
	flag.Parse()

	if *list {
		files, err := migrate.Files()
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
