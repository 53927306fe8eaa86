// ABOUTME: Entry point for the bloom audio demo player
// ABOUTME: Parses CLI flags, assembles a board and runs the audio engine
package main

import (
	"flag"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloom-audio/bloom-go/internal/sim"
	"github.com/bloom-audio/bloom-go/internal/ui"
	"github.com/bloom-audio/bloom-go/internal/version"
	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/bloom-audio/bloom-go/pkg/audio/tap"
	"github.com/bloom-audio/bloom-go/pkg/audio/transport"
	"github.com/bloom-audio/bloom-go/pkg/codec/wm8731"
	"github.com/bloom-audio/bloom-go/pkg/engine"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	backend    = flag.String("backend", "miniaudio", "Audio backend: miniaudio, oto, sim")
	rate       = flag.Int("rate", 48000, "Sample rate in Hz")
	blockSize  = flag.Int("block", 48, "Frames per processing block")
	bits       = flag.Int("bits", 24, "Bit depth")
	mode       = flag.String("mode", "passthrough", "Processing mode: passthrough, gain, sine")
	gain       = flag.Float64("gain", 1.0, "Gain multiplier for -mode gain")
	freq       = flag.Float64("freq", 440.0, "Tone frequency for -mode sine")
	tapPath    = flag.String("tap", "", "Record processed audio to this WAV file")
	duration   = flag.Duration("duration", 0, "Stop after this long (0: run until interrupted)")
	logFile    = flag.String("log-file", "bloom-player.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	log.Printf("%s player %s", version.Product, version.Version)

	cfg := audio.StreamConfig{
		SampleRate: *rate,
		BlockSize:  *blockSize,
		Channels:   2,
		BitDepth:   *bits,
	}

	var tr transport.Transport
	var sai *sim.SAI
	switch *backend {
	case "miniaudio":
		tr = transport.NewMiniaudio()
	case "oto":
		tr = transport.NewOto()
	case "sim":
		sai = sim.NewSAI()
		tr = sai
	default:
		log.Fatalf("unknown backend %q", *backend)
	}

	// There is no codec behind a host soundcard; the scripted bus
	// acknowledges the full bring-up sequence so the demo exercises it.
	codec := wm8731.New(sim.NewBus())

	// TUI setup
	var prog *tea.Program
	tuiDone := make(chan struct{})
	if useTUI {
		prog = ui.Run()
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			close(tuiDone)
		}()
	}
	sendTUI := func(msg tea.Msg) {
		if prog != nil {
			prog.Send(msg)
		}
	}

	cb := buildCallback(cfg)

	var recorder *tap.Tap
	if *tapPath != "" {
		recorder, err = tap.New(*tapPath, cfg)
		if err != nil {
			log.Fatalf("Failed to open tap: %v", err)
		}
		cb = recorder.Wrap(cb)
	}

	if useTUI {
		cb = wrapMeter(cb, cfg, sendTUI, recorder)
	}

	eng, err := engine.New(engine.Config{
		Stream:    cfg,
		Codec:     codec,
		Transport: tr,
		OnStateChange: func(s engine.State) {
			sendTUI(ui.StatusMsg{
				State:      s.String(),
				Backend:    *backend,
				SampleRate: cfg.SampleRate,
				Channels:   cfg.Channels,
				BitDepth:   cfg.BitDepth,
				BlockSize:  cfg.BlockSize,
			})
			if !useTUI {
				log.Printf("Engine state: %v", s)
			}
		},
		OnFault: func(err error) {
			log.Printf("Engine fault: %v", err)
			sendTUI(ui.StatusMsg{State: "faulted", Fault: err.Error()})
		},
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	if err := eng.Start(cb); err != nil {
		log.Fatalf("Failed to start stream: %v", err)
	}
	if sai != nil {
		// The simulated peripheral needs a clock; pace it at the block
		// period so the demo behaves like real hardware.
		sai.RunEvery(cfg.BlockDuration())
	}
	log.Printf("Streaming %s on %s backend", cfg, *backend)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	select {
	case <-sigChan:
		log.Printf("Shutdown signal received")
	case <-tuiDone:
		log.Printf("Received quit from TUI")
	case <-timeout:
		log.Printf("Duration elapsed")
	}

	eng.Stop()
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Printf("Error closing tap: %v", err)
		}
	}
	if prog != nil {
		prog.Quit()
		<-tuiDone
	}
	log.Printf("Player stopped")
}

// buildCallback selects the processing applied to each block.
func buildCallback(cfg audio.StreamConfig) engine.Callback {
	switch *mode {
	case "passthrough":
		return func(*block.Block) {}
	case "gain":
		g := *gain
		return func(b *block.Block) {
			frames := b.Frames()
			for i, s := range frames {
				frames[i] = clamp24(int32(float64(s) * g))
			}
		}
	case "sine":
		return sineCallback(cfg, *freq)
	}
	log.Fatalf("unknown mode %q", *mode)
	return nil
}

// sineCallback generates a test tone, replacing whatever was captured.
func sineCallback(cfg audio.StreamConfig, freq float64) engine.Callback {
	var sampleIndex uint64
	amplitude := 0.5 * float64(audio.Max24Bit) // 50% volume
	return func(b *block.Block) {
		frames := b.Frames()
		ch := b.Channels()
		for i := 0; i < b.Len(); i++ {
			t := float64(sampleIndex) / float64(cfg.SampleRate)
			v := int32(math.Sin(2*math.Pi*freq*t) * amplitude)
			for c := 0; c < ch; c++ {
				frames[i*ch+c] = v
			}
			sampleIndex++
		}
	}
}

// wrapMeter samples peak/RMS levels off the processed blocks and pushes
// them to the TUI a few times a second.
func wrapMeter(cb engine.Callback, cfg audio.StreamConfig, send func(tea.Msg), recorder *tap.Tap) engine.Callback {
	interval := uint64(50 * time.Millisecond / cfg.BlockDuration())
	if interval == 0 {
		interval = 1
	}
	var blocks uint64
	return func(b *block.Block) {
		cb(b)
		blocks++
		if blocks%interval != 0 {
			return
		}

		var msg ui.LevelMsg
		frames := b.Frames()
		ch := b.Channels()
		for c := 0; c < ch && c < 2; c++ {
			var peak, sumSq float64
			for i := c; i < len(frames); i += ch {
				v := math.Abs(float64(frames[i]))
				if v > peak {
					peak = v
				}
				sumSq += v * v
			}
			msg.Peak[c] = peak / float64(audio.Max24Bit)
			msg.RMS[c] = math.Sqrt(sumSq/float64(b.Len())) / float64(audio.Max24Bit)
		}
		msg.Blocks = blocks
		if recorder != nil {
			msg.Drops = recorder.Drops()
		}
		send(msg)
	}
}

func clamp24(v int32) int32 {
	if v > audio.Max24Bit {
		return audio.Max24Bit
	}
	if v < audio.Min24Bit {
		return audio.Min24Bit
	}
	return v
}
