// voice-check verifies the local voice pipeline end to end: TTS chain,
// audio playback and microphone capture. Run it before an interview to
// catch missing binaries or a blocked microphone.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretelabs/go-arete/internal/config"
	"github.com/aretelabs/go-arete/internal/log"
	"github.com/aretelabs/go-arete/pkg/speech"
	"github.com/aretelabs/go-arete/pkg/stt"
	"github.com/aretelabs/go-arete/pkg/tts"
)

func main() {
	apiURL := flag.String("api", "", "Backend API base URL; empty skips the remote TTS check")
	text := flag.String("text", "Voice check. If you can hear this, synthesis works.", "Text to synthesize")
	captureSecs := flag.Int("capture", 2, "Seconds of microphone audio to capture (0 skips)")
	flag.Parse()

	log.Init("info")

	ok := true
	if !checkTTS(*apiURL, *text) {
		ok = false
	}
	if *captureSecs > 0 && !checkCapture(*captureSecs) {
		ok = false
	}
	checkRecognizer()

	if !ok {
		os.Exit(1)
	}
	fmt.Println("voice check passed")
}

// checkTTS builds the same chain the interview client uses and plays
// one line through it.
func checkTTS(apiURL, text string) bool {
	var providers []tts.Provider

	if apiURL != "" {
		remote, err := tts.NewRemote(tts.WithBaseURL(apiURL))
		if err != nil {
			fmt.Printf("remote TTS: %v\n", err)
			return false
		}
		providers = append(providers, remote)
	}

	if local, err := tts.NewLocal(); err != nil {
		fmt.Printf("local TTS: %v\n", err)
	} else {
		fmt.Printf("local TTS: %s\n", local.Command())
		providers = append(providers, local)
	}

	if len(providers) == 0 {
		fmt.Println("no TTS provider available")
		return false
	}

	chain, err := tts.NewChain(providers...)
	if err != nil {
		fmt.Printf("chain: %v\n", err)
		return false
	}
	defer chain.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := chain.Synthesize(ctx, text)
	if err != nil {
		fmt.Printf("synthesize: %v\n", err)
		return false
	}
	fmt.Printf("synthesized %d bytes via %s\n", len(result.Audio), result.Provider)

	sink, err := speech.NewExecSink()
	if err != nil {
		fmt.Printf("playback: %v (synthesis works, no player on PATH)\n", err)
		return true
	}
	if err := sink.Play(ctx, result); err != nil {
		fmt.Printf("playback: %v\n", err)
		return false
	}
	fmt.Println("playback ok")
	return true
}

// checkCapture records a short burst from the default microphone.
func checkCapture(seconds int) bool {
	capture := stt.NewFFmpegCapture()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(seconds+5)*time.Second)
	defer cancel()

	stream, err := capture.Start(ctx)
	if err != nil {
		fmt.Printf("microphone: %v\n", err)
		return false
	}
	defer stream.Close()

	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	buf := make([]byte, 3200)
	var total int
	for time.Now().Before(deadline) {
		n, err := stream.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("microphone read: %v\n", err)
			return false
		}
	}

	if total == 0 {
		fmt.Println("microphone: no audio captured")
		return false
	}
	fmt.Printf("captured %d bytes of microphone audio\n", total)
	return true
}

// checkRecognizer only verifies configuration; a live Deepgram dial is
// not worth an API charge in a preflight.
func checkRecognizer() {
	if config.DeepgramAPIKey() == "" {
		fmt.Println("recognizer: DEEPGRAM_API_KEY not set, speech recognition will be unavailable")
		return
	}
	fmt.Println("recognizer: API key configured")
}
