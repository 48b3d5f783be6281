package main

import (
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/event"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/history"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/simserver"
)

func main() {
	_ = godotenv.Load()

	appPort := flag.Int("app-port", envInt("SIM_APP_PORT", 8090), "REST listen port")
	socketPort := flag.Int("socket-port", envInt("SIM_SOCKET_PORT", 8091), "websocket listen port")
	seed := flag.Bool("seed", true, "preload a demo request and conversation")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	hub := simserver.NewHub(logger)
	book := simserver.NewOfferBook()

	if *seed {
		seedDemo(hub, book)
		logger.Info("demo data seeded", zap.String("request", "req-demo"))
	}

	simserver.StartServers(simserver.ServerConfig{
		AppPort:    *appPort,
		SocketPort: *socketPort,
	}, hub, book, logger)
}

// seedDemo loads one request with a short negotiation, with timestamps left
// in the legacy mixed encodings the client has to normalize.
func seedDemo(hub *simserver.Hub, book *simserver.OfferBook) {
	book.SeedRequest(history.Request{
		ID:       "req-demo",
		UserID:   "user-demo",
		Title:    "Front brake pads, Toyota Camry 2018",
		Category: "parts",
		Status:   "open",
	})
	hub.SeedHistory("req-demo", []event.MessagePayload{
		{ID: "seed-1", RoomID: "req-demo", Sender: "user", Body: "Do you have these in stock?", Timestamp: 1700000000},
		{ID: "seed-2", RoomID: "req-demo", Sender: "partner", Body: "Yes, original and aftermarket.", Timestamp: "1700000060"},
		{ID: "seed-3", RoomID: "req-demo", Sender: "user", Body: "Price for original?", Timestamp: 1700000120000},
	})
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
