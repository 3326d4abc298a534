// Command kafka-producer publishes random prediction submissions to the
// predictions topic. It exists to load-test the consumer path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/footballistika/predictor/internal/domain"
)

func parseMatchIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid match id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no match ids given")
	}
	return ids, nil
}

// randomGoals favours the low scores real predictions cluster around
func randomGoals() int {
	return []int{0, 0, 1, 1, 1, 2, 2, 3, 4}[rand.Intn(9)]
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "predictions", "Kafka topic")
	matches := flag.String("matches", "1", "Match ids to predict (comma-separated)")
	users := flag.Int("users", 1000, "Number of distinct users, ids 1..N")
	rate := flag.Int("rate", 100, "Submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = until interrupted)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	matchIDs, err := parseMatchIDs(*matches)
	if err != nil {
		logger.Error("invalid -matches", "error", err)
		os.Exit(2)
	}
	if *users <= 0 || *rate <= 0 {
		logger.Error("-users and -rate must be positive")
		os.Exit(2)
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}

	var sent, failed int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&sent, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&failed, 1)
			logger.Warn("producer error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("producing predictions",
		"brokers", *brokers,
		"topic", *topic,
		"matches", matchIDs,
		"users", *users,
		"rate", *rate,
	)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			producer.AsyncClose()
			wg.Wait()
			logger.Info("producer stopped", "sent", atomic.LoadInt64(&sent), "errors", atomic.LoadInt64(&failed))
			return

		case <-ticker.C:
			userID := int64(rand.Intn(*users) + 1)
			sub := domain.PredictionSubmission{
				UserID:   userID,
				Username: fmt.Sprintf("user%d", userID),
				MatchID:  matchIDs[rand.Intn(len(matchIDs))],
				Score1:   randomGoals(),
				Score2:   randomGoals(),
			}
			data, err := json.Marshal(sub)
			if err != nil {
				logger.Warn("failed to marshal submission", "error", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(strconv.FormatInt(userID, 10)),
				Value: sarama.ByteEncoder(data),
			}

		case <-statsTicker.C:
			logger.Info("progress", "sent", atomic.LoadInt64(&sent), "errors", atomic.LoadInt64(&failed))
		}
	}
}
