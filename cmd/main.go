package main

import (
	"context"
	"log"
	"os"

	"portaria-backend/config"
	"portaria-backend/controllers"
	"portaria-backend/routes"
	"portaria-backend/services"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
)

func main() {
	config.Load()

	db := config.InitDB()
	rdb := config.InitRedis()

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "sa-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("AWS config load failed: %v", err)
	}

	registry := services.NewTokenRegistry(db)
	gateway := services.NewPushGateway(awssns.NewFromConfig(awsCfg), registry)

	feed := services.NewEntryFeed(rdb)
	events := services.NewEventStore(db, feed)
	guard := services.NewNotificationGuard(events)
	hub := services.NewHub()

	calls := services.NewCallCoordinator(gateway, registry, services.NewCallRepo(db),
		config.CallRingInterval(), config.CallTimeout())
	defer calls.StopAllCalls()

	responder := services.NewApprovalResponder(events, registry, gateway)
	whatsapp := services.NewWhatsAppClient()

	// One listener per resident session, all sharing the same guard: however
	// many sessions race on the same entry event, the in-flight map plus the
	// persisted claim keep the metered channel at one send.
	newListener := func() *services.EntryListener {
		return services.NewEntryListener(feed, guard, gateway, registry, events, whatsapp, hub)
	}

	r := routes.SetupRouter(routes.Controllers{
		Auth:         controllers.NewAuthController(services.NewAuthService(db)),
		Device:       controllers.NewDeviceController(gateway, registry),
		Intercom:     controllers.NewIntercomController(calls, events),
		Notification: controllers.NewNotificationController(events, responder),
		Realtime:     controllers.NewRealtimeController(hub, events, newListener),
	})

	if err := r.Run(":8080"); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
