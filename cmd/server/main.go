package main

import (
	"log/slog"
	"os"

	"paycalc/internal/app/server"
)

func main() {
	if err := server.Run(); err != nil {
		slog.Error("paycalc server stopped", "err", err)
		os.Exit(1)
	}
}
