// Load generator for a boardcast server. Registers a set of users, opens a
// live connection per user, and posts at the configured rate while counting
// accepted, rate-limited and failed posts.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/boardcast/boardcast/pkg/client"
	"github.com/boardcast/boardcast/pkg/protocol"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat."

var loremWords = strings.Fields(loremIpsum)

type counters struct {
	posted      atomic.Int64
	rateLimited atomic.Int64
	failed      atomic.Int64
	broadcasts  atomic.Int64
}

func randomMessage(rng *rand.Rand) string {
	count := 3 + rng.Intn(12)
	words := make([]string, count)
	for i := range words {
		words[i] = loremWords[rng.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}

func main() {
	server := flag.String("server", "localhost:8080", "Server address (host:port)")
	users := flag.Int("users", 10, "Number of concurrent users")
	interval := flag.Duration("interval", 6*time.Second, "Delay between posts per user")
	replyRatio := flag.Float64("reply-ratio", 0.5, "Fraction of posts that reply to an existing message")
	duration := flag.Duration("duration", time.Minute, "How long to run")
	flag.Parse()

	log.SetFlags(log.Ltime)
	log.Printf("Load test: %d users against %s, posting every %v", *users, *server, *interval)

	stats := &counters{}
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runUser(id, *server, *interval, *replyRatio, stats, stop)
		}(i)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-time.After(*duration):
	case sig := <-sigCh:
		log.Printf("Interrupted by %v", sig)
	}
	close(stop)
	wg.Wait()

	log.Printf("Posted: %d", stats.posted.Load())
	log.Printf("Rate limited: %d", stats.rateLimited.Load())
	log.Printf("Failed: %d", stats.failed.Load())
	log.Printf("Broadcasts observed: %d", stats.broadcasts.Load())
}

func runUser(id int, server string, interval time.Duration, replyRatio float64, stats *counters, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	username := fmt.Sprintf("loadtest%d%04d", id, rng.Intn(10000))
	password := "loadtest"

	api := client.NewAPI(server, false)
	if _, err := api.Register(username, password); err != nil {
		log.Printf("[%s] register failed: %v", username, err)
		return
	}
	token, err := api.Login(username, password)
	if err != nil {
		log.Printf("[%s] login failed: %v", username, err)
		return
	}

	conn := client.NewConnection(server, false)
	if err := conn.Connect(); err != nil {
		log.Printf("[%s] connect failed: %v", username, err)
		return
	}
	defer conn.Close()

	if err := conn.Hello(token); err != nil {
		log.Printf("[%s] handshake send failed: %v", username, err)
		return
	}

	// Replies target recently broadcast messages.
	var seenMu sync.Mutex
	var seen []int64

	go func() {
		for event := range conn.Events() {
			switch event.Tag {
			case protocol.TypeNewMessage:
				stats.broadcasts.Add(1)
				seenMu.Lock()
				seen = append(seen, event.Message.ID)
				if len(seen) > 100 {
					seen = seen[len(seen)-100:]
				}
				seenMu.Unlock()
			case protocol.TypePost:
				if event.Post.Success {
					stats.posted.Add(1)
				} else if event.Post.Error == "rate limited" {
					stats.rateLimited.Add(1)
				} else {
					stats.failed.Add(1)
				}
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var parentID *int64
			seenMu.Lock()
			if len(seen) > 0 && rng.Float64() < replyRatio {
				id := seen[rng.Intn(len(seen))]
				parentID = &id
			}
			seenMu.Unlock()

			if err := conn.Post(randomMessage(rng), parentID); err != nil {
				stats.failed.Add(1)
				return
			}
		}
	}
}
