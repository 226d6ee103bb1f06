package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/phrasecap/internal/logging"
	"github.com/lokutor-ai/phrasecap/pkg/audio"
	"github.com/lokutor-ai/phrasecap/pkg/listener"
	"github.com/lokutor-ai/phrasecap/pkg/monitor"
	"github.com/lokutor-ai/phrasecap/pkg/recognize"
	"github.com/lokutor-ai/phrasecap/pkg/segmenter"
)

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func main() {
	replayPath := flag.String("replay", "", "path to a WAV file to replay instead of opening the microphone")
	monitorAddr := flag.String("monitor-addr", ":8077", "address to serve the monitoring WebSocket feed on")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("note: no .env file found, using system environment variables")
	}

	log := logging.NewSlogLogger(slog.LevelInfo)

	recognizeHost := os.Getenv("RECOGNIZE_HOST")
	if recognizeHost == "" {
		recognizeHost = "http://localhost:5000"
	}
	recognizeToken := os.Getenv("RECOGNIZE_TOKEN")
	clientID := os.Getenv("RECOGNIZE_CLIENT_ID")
	if clientID == "" {
		clientID = "1337"
	}

	sampleRate := envInt("CAPTURE_SAMPLE_RATE", audio.DefaultSampleRate)
	chunkSize := envInt("CAPTURE_CHUNK_SIZE", audio.DefaultChunkSize)

	cfg := segmenter.DefaultConfig()
	cfg.EnergyThreshold = envFloat("ENERGY_THRESHOLD", cfg.EnergyThreshold)
	cfg.DynamicEnergyThreshold = os.Getenv("DYNAMIC_ENERGY_THRESHOLD") == "true"

	seg, err := segmenter.New(cfg, log)
	if err != nil {
		log.Error("invalid segmenter config", "error", err)
		os.Exit(1)
	}

	var source audio.Opener
	if *replayPath != "" {
		source = audio.NewWavFile(*replayPath, chunkSize)
		log.Info("replaying WAV file instead of microphone", "path", *replayPath)
	} else {
		source = audio.NewMicrophone(sampleRate, audio.DefaultSampleWidth, chunkSize)
	}

	hub := monitor.NewHub(log)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	go func() {
		log.Info("monitoring feed listening", "addr", *monitorAddr)
		if err := http.ListenAndServe(*monitorAddr, mux); err != nil {
			log.Error("monitoring feed stopped", "error", err)
		}
	}()

	var client *recognize.Client
	if recognizeToken != "" {
		client = recognize.New(recognizeHost, recognizeToken, clientID)
	} else {
		log.Warn("RECOGNIZE_TOKEN not set; segmented phrases will be broadcast but not recognized")
	}

	ctx := context.Background()

	callback := func(data audio.Data, err error) {
		if err != nil {
			log.Error("background listener stopped on source error", "error", err)
			return
		}
		if len(data.FrameData) == 0 {
			return
		}
		ev := monitor.PhraseEventFromData(time.Now(), data)
		log.Info("phrase segmented", "duration", data.Duration(), "bytes", len(data.FrameData))

		if client != nil {
			reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			result, err := client.Recognize(reqCtx, data)
			cancel()
			if err != nil {
				log.Warn("recognition request failed", "error", err)
			} else {
				log.Info("phrase recognized", "transcript", result.Transcript)
			}
			ev = monitor.WithResult(ev, result, err)
		}
		hub.Broadcast(ev)
	}

	handle, err := listener.Start(seg, source, callback, log)
	if err != nil {
		log.Error("failed to start background listener", "error", err)
		os.Exit(1)
	}

	log.Info("listening for phrases; press Ctrl+C to exit")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	handle.Stop()
	if err := handle.Err(); err != nil {
		log.Error("background listener exited with error", "error", err)
	}
}
