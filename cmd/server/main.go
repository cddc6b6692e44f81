package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mailroomhq/mailroom-backend/internal/app"
)

func main() {
	if err := app.Run(context.Background()); err != nil {
		slog.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
}
