// Command stopper is the scheduled function that stops the work instance.
// It reads INSTANCE_ID (comma separated) and the Lambda-provided AWS_REGION.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"infrastructure/awsd"
	"infrastructure/configuration"
	"infrastructure/logger"
)

func main() {
	cfg, err := configuration.InitializeFunction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.For("stopper")

	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(cfg.Region))
	if err != nil {
		log.Fatal("Failed to load AWS configuration",
			zap.String("operation", "aws_config_load"),
			zap.Error(err),
		)
	}

	scheduler := awsd.NewInstanceScheduler(awsd.NewEC2ClientWithConfig(awsCfg), cfg.InstanceIDs...)
	log.Info("Scheduler ready",
		zap.String("operation", "startup"),
		zap.Strings("instance_ids", cfg.InstanceIDs),
	)
	lambda.Start(scheduler.Handle)
}
