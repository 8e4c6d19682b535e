package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/pkg/serviceutil"
)

func InitTelemetry(ctx context.Context, verbose bool) telemetry.API {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	otel, err := telemetry.SetupFromEnv(ctx, "subplan-server")
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no telemetry.json5 found, running without exporters")
	} else if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	} else {
		go func() {
			<-ctx.Done()
			otel.Shutdown(context.Background())
		}()
	}

	tel := telemetry.SlogAPI{}
	telemetry.InstrumentPerfStats(ctx, tel)
	return tel
}
