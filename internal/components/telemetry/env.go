package telemetry

import (
	"context"
	"subplan-backend/pkg/configutil"
)

// SetupFromEnv searches up the filesystem from the cwd to find a file called
// telemetry.json5, once found it will then use it as a config to setup otel.
//
// os.ErrNotExist is returned when there is no such file, callers usually run
// without exporters in that case.
func SetupFromEnv(ctx context.Context, serviceName string) (Otel, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Otel{}, err
	}
	return Setup(ctx, serviceName, config)
}
