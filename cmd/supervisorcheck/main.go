package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/goban-state/internal/lifecycle"
)

func main() {
	baseURL := os.Getenv("SUPERVISOR_URL")
	wsURL := os.Getenv("SUPERVISOR_WS_URL")
	token := os.Getenv("SUPERVISOR_TOKEN")

	if baseURL == "" {
		log.Fatal("SUPERVISOR_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if token != "" {
			m["Authorization"] = "Bearer " + token
		}
		return m
	}

	client := lifecycle.NewSupervisorClient(baseURL,
		lifecycle.WithHeaderProvider(headers),
		lifecycle.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: grace=%ds events=%s", cfg.GraceSeconds, cfg.EventsURL)
	}

	// A task begun and ended at once must round-trip without expiring.
	grant, err := client.BeginTask(ctx, "supervisorcheck")
	if err != nil {
		log.Printf("begin task error: %v", err)
	} else {
		log.Printf("begin task ok: id=%s grace=%ds", grant.ID, grant.GraceSeconds)
		if err := client.EndTask(ctx, grant.ID); err != nil {
			log.Printf("end task error: %v", err)
		} else {
			log.Printf("end task ok")
		}
	}

	if wsURL == "" && cfg != nil {
		wsURL = cfg.EventsURL
	}
	if wsURL == "" {
		log.Println("SUPERVISOR_WS_URL not set; skipping event feed check")
		return
	}

	feed := lifecycle.NewEventFeed(wsURL, 5, nil)
	feed.SetHeaderProvider(headers)
	feed.OnStateChange(func(state lifecycle.FeedState) {
		log.Printf("feed state: %s", state)
	})
	feed.OnEvent(func(ev lifecycle.Event) {
		fmt.Printf("event type=%s task=%s at=%s\n", ev.Type, ev.TaskID, ev.At.Format(time.RFC3339))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := feed.Connect(cctx); err != nil {
		log.Printf("feed connect error: %v", err)
		return
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = feed.Close(context.Background())
}
