// Command play drives an audiograph context from the command line: tone
// generation through oscillator -> gain -> destination, WAV file playback
// through a buffer source, and deterministic offline rendering to a WAV
// file.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"bken/audiograph"
)

// config mirrors the flag set; a YAML file supplies defaults that flags
// override.
type config struct {
	SampleRate float32 `yaml:"sample_rate"`
	Freq       float32 `yaml:"freq"`
	Gain       float32 `yaml:"gain"`
	Wave       string  `yaml:"wave"`
	Duration   float64 `yaml:"duration"`
}

func defaultConfig() config {
	return config{
		SampleRate: 48000,
		Freq:       440,
		Gain:       0.5,
		Wave:       "sine",
		Duration:   2,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func waveType(name string) (audiograph.OscillatorType, error) {
	switch strings.ToLower(name) {
	case "sine":
		return audiograph.Sine, nil
	case "square":
		return audiograph.Square, nil
	case "sawtooth", "saw":
		return audiograph.Sawtooth, nil
	case "triangle":
		return audiograph.Triangle, nil
	default:
		return audiograph.Sine, fmt.Errorf("unknown waveform %q", name)
	}
}

func main() {
	var (
		configPath = pflag.String("config", "", "YAML config file")
		freq       = pflag.Float32("freq", 0, "oscillator frequency in Hz")
		gain       = pflag.Float32("gain", -1, "output gain")
		wave       = pflag.String("wave", "", "waveform: sine, square, sawtooth, triangle")
		duration   = pflag.Float64("duration", 0, "seconds to play or render")
		inFile     = pflag.String("file", "", "WAV file to play instead of a tone")
		offline    = pflag.String("offline", "", "render offline into this WAV file")
		nullSink   = pflag.Bool("null-sink", false, "discard output instead of using the audio device")
		verbose    = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "play"})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("config", "err", err)
	}
	if *freq != 0 {
		cfg.Freq = *freq
	}
	if *gain >= 0 {
		cfg.Gain = *gain
	}
	if *wave != "" {
		cfg.Wave = *wave
	}
	if *duration != 0 {
		cfg.Duration = *duration
	}

	if err := run(cfg, *inFile, *offline, *nullSink, logger); err != nil {
		logger.Fatal("play", "err", err)
	}
}

func run(cfg config, inFile, offline string, nullSink bool, logger *log.Logger) error {
	options := &audiograph.AudioContextOptions{
		SampleRate:  cfg.SampleRate,
		LatencyHint: audiograph.Playback,
		Logger:      logger,
	}

	if offline != "" {
		return renderOffline(cfg, inFile, offline, options, logger)
	}

	var (
		ctx *audiograph.AudioContext
		err error
	)
	if nullSink {
		ctx, err = audiograph.NewAudioContextWithSink(audiograph.NewNullAudioSink(), options)
	} else {
		ctx, err = audiograph.NewAudioContext(options)
	}
	if err != nil {
		return err
	}
	defer ctx.Close()

	if err := buildGraph(ctx, cfg, inFile); err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return err
	}
	logger.Info("playing", "duration", cfg.Duration)
	time.Sleep(time.Duration(cfg.Duration * float64(time.Second)))
	logger.Debug("clock", "currentTime", ctx.CurrentTime())
	return nil
}

func renderOffline(cfg config, inFile, outPath string, options *audiograph.AudioContextOptions, logger *log.Logger) error {
	const channels = 2
	totalFrames := int(cfg.Duration * float64(cfg.SampleRate))

	ctx, err := audiograph.NewOfflineAudioContext(channels, totalFrames, options)
	if err != nil {
		return err
	}
	defer ctx.Close()

	done := make(chan []float32, 1)
	ctx.SetEOSCallback(func(buffer []float32) { done <- buffer })

	if err := buildGraph(ctx, cfg, inFile); err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return err
	}

	buffer := <-done
	logger.Info("rendered", "frames", totalFrames, "out", outPath)
	return writeWAV(outPath, buffer, channels, totalFrames, cfg.SampleRate)
}

// buildGraph wires source -> gain -> destination.
func buildGraph(ctx *audiograph.AudioContext, cfg config, inFile string) error {
	var (
		source audiograph.NodeID
		err    error
	)
	if inFile != "" {
		data, err := os.ReadFile(inFile)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		buffer, err := audiograph.DecodeAudioBuffer(audiograph.WAVDecoder{}, data, ctx.SampleRate())
		if err != nil {
			return err
		}
		source, err = ctx.CreateNode(audiograph.BufferSourceNodeInit{
			Options: audiograph.BufferSourceOptions{Buffer: buffer},
		})
		if err != nil {
			return err
		}
	} else {
		wave, err := waveType(cfg.Wave)
		if err != nil {
			return err
		}
		source, err = ctx.CreateNode(audiograph.OscillatorNodeInit{
			Options: audiograph.OscillatorOptions{Type: wave, Freq: cfg.Freq},
		})
		if err != nil {
			return err
		}
	}

	gain, err := ctx.CreateNode(audiograph.GainNodeInit{
		Options: audiograph.GainOptions{Gain: cfg.Gain},
	})
	if err != nil {
		return err
	}

	ctx.ConnectPorts(source.Output(0), gain.Input(0))
	ctx.ConnectPorts(gain.Output(0), ctx.DestNode().Input(0))
	ctx.MessageNode(source, audiograph.Start{When: 0})
	return nil
}

// writeWAV stores the offline sink's channel-major buffer as 16-bit PCM.
func writeWAV(path string, buffer []float32, channels, frames int, sampleRate float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	dataLen := frames * channels * 2
	header := make([]byte, 0, 44)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+dataLen))
	header = append(header, "WAVE"...)
	header = append(header, "fmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1) // PCM
	header = binary.LittleEndian.AppendUint16(header, uint16(channels))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate)*uint32(channels)*2)
	header = binary.LittleEndian.AppendUint16(header, uint16(channels)*2)
	header = binary.LittleEndian.AppendUint16(header, 16)
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(dataLen))
	if _, err := f.Write(header); err != nil {
		return err
	}

	out := make([]byte, dataLen)
	for frame := 0; frame < frames; frame++ {
		for chn := 0; chn < channels; chn++ {
			sample := buffer[chn*frames+frame]
			if sample > 1 {
				sample = 1
			} else if sample < -1 {
				sample = -1
			}
			v := int16(sample * 32767)
			binary.LittleEndian.PutUint16(out[(frame*channels+chn)*2:], uint16(v))
		}
	}
	if _, err := f.Write(out); err != nil {
		return err
	}
	return nil
}
