// ABOUTME: Deterministic soak test for the audio engine on the simulated backend
// ABOUTME: Drives N half-completion events and verifies exactly-once callback delivery
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/bloom-audio/bloom-go/internal/sim"
	"github.com/bloom-audio/bloom-go/internal/version"
	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/bloom-audio/bloom-go/pkg/codec/wm8731"
	"github.com/bloom-audio/bloom-go/pkg/engine"
)

var (
	events    = flag.Int("events", 10000, "Number of half-completion events to drive")
	rate      = flag.Int("rate", 48000, "Sample rate in Hz")
	blockSize = flag.Int("block", 48, "Frames per processing block")
	bits      = flag.Int("bits", 24, "Bit depth")
	paced     = flag.Bool("paced", false, "Pace events at the real block period instead of flat out")
	verbose   = flag.Bool("verbose", false, "Log every 1000 blocks")
)

func main() {
	flag.Parse()

	cfg := audio.StreamConfig{
		SampleRate: *rate,
		BlockSize:  *blockSize,
		Channels:   2,
		BitDepth:   *bits,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Bad config: %v", err)
	}

	bus := sim.NewBus()
	sai := sim.NewSAI()

	// The callback hands each block back to the driving loop, which
	// clocks the peripheral in lock-step: one event, one callback, no
	// overlap. Any double delivery or drop shows up as a count mismatch.
	processed := make(chan *block.Block, 1)
	cb := func(b *block.Block) { processed <- b }

	eng, err := engine.New(engine.Config{
		Stream:    cfg,
		Codec:     wm8731.New(bus),
		Transport: sai,
		OnFault: func(err error) {
			log.Printf("FAULT: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	start := time.Now()
	if err := eng.Start(cb); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	log.Printf("%s soak %s: %d events, %s, paced=%v",
		version.Product, version.Version, *events, cfg, *paced)

	var (
		calls     int
		violation string
		minGap    = time.Hour
		maxGap    time.Duration
		totalGap  time.Duration
		lastHalf  *block.Block
		lastStamp time.Time
	)

	period := cfg.BlockDuration()
	for i := 0; i < *events; i++ {
		if !sai.Advance() {
			log.Printf("FAIL: peripheral refused event %d (xrun?)", i)
			break
		}
		b := <-processed

		now := time.Now()
		if !lastStamp.IsZero() {
			d := now.Sub(lastStamp)
			totalGap += d
			if d < minGap {
				minGap = d
			}
			if d > maxGap {
				maxGap = d
			}
		}
		lastStamp = now
		calls++

		if b.Len() != cfg.BlockSize {
			violation = "callback saw wrong block size"
		}
		if b == lastHalf {
			violation = "consecutive events delivered the same half"
		}
		lastHalf = b

		if *verbose && calls%1000 == 0 {
			log.Printf("Processed %d blocks", calls)
		}
		if *paced {
			time.Sleep(period)
		}
	}

	eng.Stop()
	elapsed := time.Since(start)

	blocks := eng.Blocks()
	log.Printf("Soak complete in %v", elapsed)
	log.Printf("Events driven:     %d", *events)
	log.Printf("Callbacks run:     %d", calls)
	log.Printf("Blocks accounted:  %d", blocks)
	if calls > 1 {
		log.Printf("Inter-callback gap: min=%v avg=%v max=%v",
			minGap, totalGap/time.Duration(calls-1), maxGap)
	}
	log.Printf("Codec writes:      %d", len(bus.Writes()))

	failed := false
	if blocks != uint64(*events) {
		log.Printf("FAIL: expected %d blocks, engine accounted %d", *events, blocks)
		failed = true
	}
	if calls != *events {
		log.Printf("FAIL: expected %d callbacks, got %d (exactly-once violated)", *events, calls)
		failed = true
	}
	if violation != "" {
		log.Printf("FAIL: %s", violation)
		failed = true
	}
	if err := eng.Err(); err != nil {
		log.Printf("FAIL: engine faulted: %v", err)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	log.Printf("PASS: every event delivered exactly once")
}
