package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/robalyx/guildstats/internal/rest"
	"github.com/robalyx/guildstats/internal/setup"
	"github.com/robalyx/guildstats/internal/setup/telemetry"
)

func main() {
	app, err := setup.InitializeApp(context.Background(), telemetry.ServiceLambda, setup.Options{
		ReadEnvPerRequest: true,
	})
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(context.Background())

	lambda.Start(rest.LambdaHandler(app.StatsHandler))
}
