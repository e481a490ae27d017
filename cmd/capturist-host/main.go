// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xmunder/capturist/internal/audiocap"
	"github.com/xmunder/capturist/internal/capturerun"
	"github.com/xmunder/capturist/internal/config"
	"github.com/xmunder/capturist/internal/diagnose"
	"github.com/xmunder/capturist/internal/manager"
	"github.com/xmunder/capturist/internal/region"
	"github.com/xmunder/capturist/internal/shortcut"
	"github.com/xmunder/capturist/internal/status"
	"github.com/xmunder/capturist/internal/supervise"
	"github.com/xmunder/capturist/internal/target"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const exitError = 1

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	switch args[0] {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "serve":
		return runServe()
	case "diagnose":
		return runDiagnose()
	case "targets":
		return runTargets()
	case "audio-devices":
		return runAudioDevices()
	default:
		return fmt.Errorf("unknown command: %s (run 'capturist-host help' for usage)", args[0])
	}
}

func runHelp() error {
	fmt.Print(`capturist-host

USAGE:
    capturist-host [COMMAND]

COMMANDS:
    serve          Run the recording host, dispatching commands framed as
                   JSON-lines on stdin and replying on stdout
    diagnose       Print ffmpeg discovery and encoder capability probe results
    targets        List available capture targets (monitors and windows)
    audio-devices  List active WASAPI capture endpoints
    version        Show version information
    help           Show this help message
`)
	return nil
}

func runVersion() error {
	fmt.Printf("capturist-host\n  Version:    %s\n  Git Commit: %s\n  Built:      %s\n", Version, GitCommit, BuildDate)
	return nil
}

func runDiagnose() error {
	bin, dir, err := diagnose.FindFFmpeg(os.Getenv)
	if err != nil {
		fmt.Printf("ffmpeg: NOT FOUND (%v)\n", err)
		return nil
	}
	fmt.Printf("ffmpeg: %s\n", bin)
	fmt.Printf("ffmpeg dir: %s\n", dir)

	caps := diagnose.NewCapabilityCache(bin).Get(context.Background())
	fmt.Printf("encoder capabilities: nvenc=%v amf=%v qsv=%v software=%v\n",
		caps.NVENC, caps.AMF, caps.QSV, caps.Software)

	snap, err := diagnose.SelfSnapshot()
	if err != nil {
		fmt.Printf("resource snapshot: error - %v\n", err)
		return nil
	}
	fmt.Printf("resource snapshot: cpu=%.1f%% rss=%.1fMB\n", snap.CPUPercent, snap.MemoryRSSMB)
	return nil
}

// runTargets prints every capturable monitor and window, for local
// diagnosis outside the JSON-lines protocol (cmd/capturist-setup shells
// out to this rather than speaking the wire format).
func runTargets() error {
	provider := target.NewProvider()
	if !provider.IsSupported() {
		fmt.Println("capture is not supported on this build")
		return nil
	}
	targets, err := provider.GetTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("no capture targets found")
		return nil
	}
	for _, t := range targets {
		primary := ""
		if t.Primary {
			primary = " (primary)"
		}
		fmt.Printf("[%d] %s %dx%d%s\n", t.ID, t.Name, t.Width, t.Height, primary)
	}
	return nil
}

// runAudioDevices prints every active WASAPI capture endpoint ID.
func runAudioDevices() error {
	devices, err := audiocap.EnumerateInputDevices()
	if err == audiocap.ErrUnsupported {
		fmt.Println("audio capture is not supported on this build")
		return nil
	}
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no audio input devices found")
		return nil
	}
	for i, id := range devices {
		fmt.Printf("[%d] %s\n", i, id)
	}
	return nil
}

// runServe builds the Host and drives the JSON-lines protocol on
// stdin/stdout until stdin closes or the process receives SIGINT/SIGTERM.
func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ffmpegBin, ffmpegDir, err := diagnose.FindFFmpeg(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (mux/encode commands will fail until ffmpeg is available)\n", err)
	}

	st := status.New()
	provider := target.NewProvider()

	experimentalD3D11 := manager.EnvFlagEnabled(os.Getenv("CAPTURIST_EXPERIMENTAL_D3D11_INPUT"))
	mp4Faststart := manager.EnvFlagEnabled(os.Getenv("CAPTURIST_MP4_FASTSTART"))

	host := &manager.Host{
		Manager:  manager.New(provider, st, unimplementedCapturerFactory, ffmpegBin, ffmpegDir, experimentalD3D11, mp4Faststart),
		Provider: provider,
		Status:   st,
		Caps:     diagnose.NewCapabilityCache(ffmpegBin),
		Watcher:  shortcut.NewWatcher(),
		Selector: region.NewSelector(),
	}

	enc := json.NewEncoder(os.Stdout)
	host.OnShortcutTriggered = func(a shortcut.Action) {
		_ = enc.Encode(eventEnvelope{Event: "global-shortcut-triggered", Payload: string(a)})
	}

	tree := supervise.New("capturist-host")
	tree.Add(pollerService{host: host})
	tree.Start(ctx)
	defer tree.Stop(5 * time.Second)

	srv := &server{host: host, defaultCfg: loadSessionDefaults()}
	return serveJSONLines(ctx, srv, os.Stdin, enc)
}

// loadSessionDefaults builds the SessionConfig defaults every
// start_recording request is merged onto, via KoanfConfig's YAML-file
// + CAPTURIST_*-env layering (CAPTURIST_CONFIG_FILE names the optional
// YAML profile). The wire payload's own fields — TargetID,
// Encoder.OutputPath, and anything else the caller sets — always win,
// since json.Unmarshal only overwrites fields present in the payload.
// SessionConfig has no json tags, so the payload keys are its Go field
// names, matched case-insensitively.
func loadSessionDefaults() config.SessionConfig {
	defaultCfg := *config.DefaultConfig()

	var opts []config.Option
	if p := os.Getenv("CAPTURIST_CONFIG_FILE"); p != "" {
		opts = append(opts, config.WithYAMLFile(p))
	}
	kc, err := config.NewKoanfConfig(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: config loader init failed: %v (session defaults will fall back to built-ins)\n", err)
		return defaultCfg
	}
	loaded, err := kc.LoadPartial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (session defaults will fall back to built-ins)\n", err)
		return defaultCfg
	}
	return *loaded
}

// unimplementedCapturerFactory is the composition root's single,
// clearly-marked wiring point for the concrete Windows screen-capture
// backend (Desktop Duplication or Windows.Graphics.Capture); no example
// in the retrieval pack demonstrates either API surface, so no backend
// is fabricated here. Swap this for a real implementation without
// touching internal/manager.
func unimplementedCapturerFactory(target.Target, *target.Region) (capturerun.Capturer, error) {
	return nil, fmt.Errorf("capturist-host: no screen-capture backend wired for this build")
}

// pollerService adapts Host.Manager.RefreshRuntimeState into a
// supervise.Service, keeping the session state machine in sync with a
// producer that finished on its own between command calls.
type pollerService struct{ host *manager.Host }

func (pollerService) Name() string { return "runtime-poller" }

func (p pollerService) Run(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.host.Manager.RefreshRuntimeState(ctx)
		}
	}
}

type request struct {
	ID     string          `json:"id"`
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type eventEnvelope struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// server pairs the Host with the per-session config defaults every
// start_recording request is merged onto.
type server struct {
	host       *manager.Host
	defaultCfg config.SessionConfig
}

func serveJSONLines(ctx context.Context, srv *server, in *os.File, enc *json.Encoder) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(response{OK: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		_ = enc.Encode(dispatch(ctx, srv, req))
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, srv *server, req request) response {
	result, err := dispatchCommand(ctx, srv, req.Cmd, req.Params)
	if err != nil {
		return response{ID: req.ID, OK: false, Error: err.Error()}
	}
	return response{ID: req.ID, OK: true, Result: result}
}

func dispatchCommand(ctx context.Context, srv *server, cmd string, params json.RawMessage) (interface{}, error) {
	host := srv.host
	switch cmd {
	case "is_capture_supported":
		return host.IsCaptureSupported(), nil

	case "get_targets":
		return host.GetTargets()

	case "get_audio_input_devices":
		return host.GetAudioInputDevices()

	case "get_video_encoder_capabilities":
		return host.GetVideoEncoderCapabilities(ctx), nil

	case "get_recording_audio_status":
		return host.GetRecordingAudioStatus(), nil

	case "set_global_shortcuts":
		var p struct {
			Start       string `json:"start"`
			PauseResume string `json:"pauseResume"`
			Stop        string `json:"stop"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, setGlobalShortcuts(host, p.Start, p.PauseResume, p.Stop)

	case "start_recording":
		cfg := srv.defaultCfg
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, err
		}
		return nil, host.StartRecording(ctx, cfg)

	case "update_recording_audio_capture":
		var p struct {
			CaptureSystemAudio     bool `json:"capture_system_audio"`
			CaptureMicrophoneAudio bool `json:"capture_microphone_audio"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, host.UpdateRecordingAudioCapture(p.CaptureSystemAudio, p.CaptureMicrophoneAudio)

	case "pause_recording":
		return nil, host.PauseRecording()
	case "resume_recording":
		return nil, host.ResumeRecording()
	case "stop_recording":
		return nil, host.StopRecording(ctx)
	case "cancel_recording":
		return nil, host.CancelRecording(ctx)
	case "get_recording_status":
		return recordingStatusView(host.GetRecordingStatus()), nil

	case "select_region_native":
		var p struct {
			TargetID *int32 `json:"target_id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		var t *target.Target
		if p.TargetID != nil {
			targets, err := host.GetTargets()
			if err != nil {
				return nil, err
			}
			for i := range targets {
				if int32(targets[i].ID) == *p.TargetID {
					t = &targets[i]
					break
				}
			}
		}
		return host.SelectRegionNative(t)

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

// recordingStatusViewT mirrors manager.Snapshot for the wire, rendering
// the last error (if any) as a plain string for JSON transport.
type recordingStatusViewT struct {
	State        string `json:"state"`
	ElapsedMS    int64  `json:"elapsed_ms"`
	LastError    string `json:"last_error,omitempty"`
	EncoderLabel string `json:"encoder_label"`
	IsProcessing bool   `json:"is_processing"`
}

func recordingStatusView(s manager.Snapshot) recordingStatusViewT {
	v := recordingStatusViewT{
		State:        s.State.String(),
		ElapsedMS:    s.ElapsedMS,
		EncoderLabel: s.EncoderLabel,
		IsProcessing: s.IsProcessing,
	}
	if s.LastError != nil {
		v.LastError = s.LastError.Error()
	}
	return v
}

func setGlobalShortcuts(host *manager.Host, start, pauseResume, stop string) error {
	var bindings []shortcut.Binding

	add := func(action shortcut.Action, raw string) error {
		if raw == "" {
			return nil
		}
		b, err := shortcut.ParseBinding(action, raw, shortcut.DefaultVKLookup)
		if err != nil {
			return err
		}
		bindings = append(bindings, b)
		return nil
	}
	if err := add(shortcut.ActionStart, start); err != nil {
		return err
	}
	if err := add(shortcut.ActionPauseResume, pauseResume); err != nil {
		return err
	}
	if err := add(shortcut.ActionStop, stop); err != nil {
		return err
	}
	if err := shortcut.Dedup(bindings); err != nil {
		return err
	}
	return host.SetGlobalShortcuts(bindings)
}
