package main

import (
	"context"
	"subplan-backend/cmd/subplan-cli/commands"
	"subplan-backend/internal/components/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "subplan-cli")
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}
