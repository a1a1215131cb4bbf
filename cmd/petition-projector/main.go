// Command petition-projector reads chaincode event payloads, one JSON document per line on
// stdin, and folds them into the Redis read model.
package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"petitionledger/config"
	"petitionledger/projection"

	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("petitionledger.projector")

const maxPayloadBytes = 1 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to read configuration: %v", err)
	}
	flogging.ActivateSpec(cfg.LogSpec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projector, err := projection.NewRedisProjector(cfg.RedisURL, cfg.DedupTTL())
	if err != nil {
		logger.Fatalf("Failed to start projector: %v", err)
	}
	defer projector.Close()

	applied, failed := 0, 0
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), maxPayloadBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := projector.ApplyPayload(ctx, line); err != nil {
			failed++
			logger.Errorf("Failed to apply event: %v", err)
			continue
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf("Reading events: %v", err)
	}
	logger.Infof("Projector stopped: %d events applied, %d failed", applied, failed)
}
