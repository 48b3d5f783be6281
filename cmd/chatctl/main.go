// chatctl is a terminal client for the chat core: it opens one conversation
// thread, streams its snapshots, and sends whatever is typed on stdin. Used
// against a simserver (or the real backend) to exercise the full stack.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/configuration"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CHAT_CONFIG"), "path to JSON config (empty = local defaults)")
	userID := flag.String("user", "user-demo", "authenticated user id")
	requestID := flag.String("request", "req-demo", "request/offer id to open")
	peerID := flag.String("peer", "", "counterparty id")
	asPartner := flag.Bool("partner", false, "act as the partner side")
	flag.Parse()

	self := model.PartyUser
	if *asPartner {
		self = model.PartyPartner
	}

	container, err := configuration.BuildContainer(*configPath, self)
	if err != nil {
		log.Fatalf("failed to build container: %v", err)
	}
	defer container.Close()

	key := model.ConversationKey(*requestID)

	// Resolve conversation metadata before opening, the way the screens do.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if req, err := container.Offers.GetRequestByID(ctx, *requestID); err == nil {
		fmt.Printf("* %s [%s]\n", req.Title, req.Status)
	}
	cancel()

	store, err := container.Registry.OpenThread(key, *userID, *peerID)
	if err != nil {
		log.Fatalf("failed to open thread: %v", err)
	}
	defer container.Registry.CloseThread(key)

	unsubConn := container.Registry.SubscribeConnection(func(st model.ConnectionState) {
		fmt.Printf("· connection: %s\n", st.Status)
	})
	defer unsubConn()

	rendered := 0
	unsub := store.Subscribe(func(snap model.ThreadSnapshot) {
		for _, m := range snap.Messages[min(rendered, len(snap.Messages)):] {
			ts := time.UnixMilli(m.TimestampMillis).Format("15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, m.Sender, m.Body)
		}
		rendered = len(snap.Messages)
		if snap.PartnerTyping() {
			fmt.Println("· partner is typing…")
		}
		if last, ok := snap.LastMessage(); ok {
			_ = container.LastViewed.MarkViewed(context.Background(), key, last.TimestampMillis)
		}
	})
	defer unsub()

	fmt.Println("type a message and press enter (/quit to exit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return
		}
		if line == "" {
			continue
		}
		// Simulate the input field: typing starts, then the send ends it.
		container.Typing.InputChanged(key, line)
		container.Registry.Send(key, line)
		container.Typing.Stop(key)
	}
}
