// Package main - agitator
// Load generator: many concurrent players spamming room actions over the websocket.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/network"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	OutPath        string
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent int64
	Acks         int64
	Rejected     int64
	Events       int64
	Errors       int64
	Latencies    []time.Duration
	mu           sync.Mutex
}

var ingredients = []string{"bread", "bacon", "lettuce", "tomato", "cheese"}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent clients")
	interval := flag.Duration("interval", 100*time.Millisecond, "Action interval per client")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	out := flag.String("out", "stress_test_results.json", "Where to write the JSON results")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		OutPath:        *out,
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - time rooms load generator")
	fmt.Println("=========================================")
	fmt.Printf("Server: %s\n", config.ServerURL)
	fmt.Printf("Clients: %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := runStressTest(ctx, config)
	printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\nStarting clients...")
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: Sent=%d Acks=%d Rejected=%d Events=%d Errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent), atomic.LoadInt64(&stats.Acks),
					atomic.LoadInt64(&stats.Rejected), atomic.LoadInt64(&stats.Events),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	go func() {
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			countReplies(frame, stats)
		}
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))
	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			action := generateRandomAction(rng)
			start := time.Now()

			if err := conn.WriteJSON(action); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}

			latency := time.Since(start)
			atomic.AddInt64(&stats.MessagesSent, 1)

			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, latency)
			stats.mu.Unlock()
		}
	}
}

// countReplies tallies one frame. The server batches queued messages with newlines.
func countReplies(frame []byte, stats *Stats) {
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		var msg network.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
			continue
		}
		switch msg.Type {
		case network.MsgTypeAck:
			atomic.AddInt64(&stats.Acks, 1)
		case network.MsgTypeError:
			atomic.AddInt64(&stats.Rejected, 1)
		case network.MsgTypeEvent:
			atomic.AddInt64(&stats.Events, 1)
		}
	}
}

func generateRandomAction(rng *rand.Rand) network.PlayerAction {
	var payload interface{}
	actionType := []string{
		network.ActionMove,
		network.ActionTeleport,
		network.ActionPickup,
		network.ActionDrop,
		network.ActionNewOrder,
		network.ActionAddIngredient,
		network.ActionSubmitSandwich,
	}[rng.Intn(7)]

	switch actionType {
	case network.ActionMove:
		payload = map[string]room.Vec3{"position": {X: rng.Float64()*36 - 18, Y: 1, Z: rng.Float64()*10 - 5}}
	case network.ActionTeleport:
		payload = map[string]int{"room": rng.Intn(room.Count)}
	case network.ActionPickup:
		kinds := []string{"apple", "cheese", "wine", "SCrystal", "FCrystal"}
		payload = map[string]string{"item_id": fmt.Sprintf("%s-%d", kinds[rng.Intn(len(kinds))], 1+rng.Intn(3))}
	case network.ActionDrop:
		payload = map[string]int{"hand": rng.Intn(2)}
	case network.ActionAddIngredient:
		payload = map[string]string{"ingredient_id": ingredients[rng.Intn(len(ingredients))]}
	}

	raw, _ := json.Marshal(payload)
	return network.PlayerAction{Type: actionType, Payload: raw}
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	acks := atomic.LoadInt64(&stats.Acks)
	rejected := atomic.LoadInt64(&stats.Rejected)
	evts := atomic.LoadInt64(&stats.Events)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Messages Sent:     %d\n", sent)
	fmt.Printf("Acks:              %d\n", acks)
	fmt.Printf("Rejected:          %d\n", rejected)
	fmt.Printf("Events Received:   %d\n", evts)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	if len(stats.Latencies) > 0 {
		var total time.Duration
		minLat, maxLat := stats.Latencies[0], stats.Latencies[0]
		for _, l := range stats.Latencies {
			total += l
			minLat = min(minLat, l)
			maxLat = max(maxLat, l)
		}
		avg := total / time.Duration(len(stats.Latencies))

		fmt.Printf("\nLatency:\n")
		fmt.Printf("  Min: %v\n", minLat)
		fmt.Printf("  Avg: %v\n", avg)
		fmt.Printf("  Max: %v\n", maxLat)
	}

	// Rejected actions are game rules (out of reach, hands full) and do not count as errors.
	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && acks+rejected >= sent*9/10:
		fmt.Println("TEST PASSED: System handled the load")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("TEST WARNING: Some errors detected")
	default:
		fmt.Println("TEST FAILED: High error rate")
	}
	fmt.Println("=========================================")

	results := map[string]interface{}{
		"messages_sent":      sent,
		"acks":               acks,
		"rejected":           rejected,
		"events_received":    evts,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.OutPath, jsonData, 0644); err != nil {
		log.Printf("write results: %v", err)
		return
	}
	fmt.Println("\nResults saved to " + config.OutPath)
}
