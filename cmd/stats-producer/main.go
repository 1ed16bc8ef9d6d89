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

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/stats-tracker/internal/domain"
)

const maxLevel = 2550

var playerPrefixes = []string{
	"Pirate", "Marine", "Kraken", "Shark", "Dragon", "Phoenix", "Magma", "Ice", "Light", "Dark",
	"Buddha", "Venom", "Dough", "Spirit", "Shadow", "Rumble", "Quake", "Flame", "Sand", "Smoke",
}

var fruits = []string{
	"", "Bomb Fruit", "Spike Fruit", "Flame Fruit", "Ice Fruit", "Light Fruit", "Magma Fruit",
	"Buddha Fruit", "Dough Fruit", "Leopard Fruit", "Dragon Fruit", "Kitsune Fruit",
}

var styles = []string{
	"Combat", "Dark Step", "Electric", "Water Kung Fu", "Dragon Breath", "Superhuman",
	"Death Step", "Sharkman Karate", "Electric Claw", "Dragon Talon", "Godhuman",
}

var swords = []string{"Katana", "Cutlass", "Dual Katana", "Saber", "Pole", "Midnight Blade", "Yama", "Tushita"}

var guns = []string{"Slingshot", "Musket", "Flintlock", "Refined Slingshot", "Kabucha", "Acidum Rifle"}

// player is the simulated state of one game client
type player struct {
	name      string
	userID    int64
	sessionID string
	level     int64
	beli      int64
	fragments int64
	bounty    int64
	fruit     string
	styles    []string
	swords    []string
	guns      []string
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func newPlayer(idx int) *player {
	return &player{
		name:      getPlayerName(idx),
		userID:    int64(1_000_000 + idx),
		sessionID: uuid.NewString(),
		level:     int64(rand.Intn(100) + 1),
		beli:      int64(rand.Intn(50_000)),
		styles:    []string{styles[0]},
		swords:    []string{swords[0]},
	}
}

// advance simulates a stretch of play
func (p *player) advance() {
	if p.level < maxLevel {
		p.level += int64(rand.Intn(5))
		if p.level > maxLevel {
			p.level = maxLevel
		}
	}
	p.beli += int64(rand.Intn(25_000))
	p.fragments += int64(rand.Intn(200))
	p.bounty += int64(rand.Intn(10_000))

	switch rand.Intn(20) {
	case 0:
		p.fruit = fruits[rand.Intn(len(fruits))]
	case 1:
		p.styles = appendUnique(p.styles, styles[rand.Intn(len(styles))])
	case 2:
		p.swords = appendUnique(p.swords, swords[rand.Intn(len(swords))])
	case 3:
		p.guns = appendUnique(p.guns, guns[rand.Intn(len(guns))])
	}
}

func (p *player) payload() domain.StatsPayload {
	style := p.styles[len(p.styles)-1]
	return domain.StatsPayload{
		PlayerName:     p.name,
		UserID:         domain.Number(p.userID),
		Level:          domain.Number(p.level),
		Beli:           domain.Number(p.beli),
		Fragments:      domain.Number(p.fragments),
		Bounty:         domain.Number(p.bounty),
		EquippedFruit:  p.fruit,
		FightingStyle:  style,
		SessionID:      p.sessionID,
		FightingStyles: &domain.StylesPayload{Owned: append([]string(nil), p.styles...)},
		Items: &domain.ItemsPayload{
			Swords: append([]string{}, p.swords...),
			Guns:   append([]string{}, p.guns...),
		},
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "player-stats", "Kafka topic")
	totalPlayers := flag.Int("players", 100, "Total number of simulated players")
	updatesPerSecond := flag.Int("rate", 20, "Updates per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	initialOnly := flag.Bool("initial-only", false, "Only send one snapshot per player, no continuous updates")
	flag.Parse()

	if *totalPlayers <= 0 || *updatesPerSecond <= 0 {
		log.Fatal("players and rate must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Kafka Stats Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Updates/sec:      %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Payloads are keyed by player so one player's snapshots stay ordered
	sendPayload := func(payload domain.StatsPayload) {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("Failed to marshal payload: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(payload.PlayerName),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	finish := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	players := make([]*player, *totalPlayers)
	fmt.Printf("Sending %d initial snapshots...\n", *totalPlayers)
	for i := range players {
		players[i] = newPlayer(i)
		sendPayload(players[i].payload())
	}
	fmt.Printf("Sent %d initial snapshots\n\n", *totalPlayers)

	if *initialOnly {
		finish()
		return
	}

	fmt.Printf("Starting continuous updates (%d/sec)\n", *updatesPerSecond)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(time.Second / time.Duration(*updatesPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var updateCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			finish()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				finish()
				return
			}

			p := players[rand.Intn(len(players))]
			p.advance()
			sendPayload(p.payload())
			atomic.AddInt64(&updateCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Updates: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&updateCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
