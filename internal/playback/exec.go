package playback

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoPlayer indicates no supported audio player is installed.
var ErrNoPlayer = errors.New("no audio player found. Install mpv (recommended), afplay (macOS), or aplay (Linux)")

// players lists the auto-detected audio players in order of preference.
var players = []string{"mpv", "ffplay", "afplay", "paplay", "aplay"}

// ExecEngine plays audio by running an external player on a temp file.
type ExecEngine struct {
	player   string
	lookPath func(string) (string, error)
	logger   zerolog.Logger
}

// NewExecEngine returns an engine using player, or the first installed
// player from the built-in list when player is empty. Player may include
// extra arguments, e.g. "mpv --volume=50".
func NewExecEngine(player string, logger zerolog.Logger) *ExecEngine {
	return &ExecEngine{
		player:   strings.TrimSpace(player),
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// Start implements Engine.
func (e *ExecEngine) Start(audio []byte, rate float64) (Handle, error) {
	name, args, err := e.command(rate)
	if err != nil {
		return nil, err
	}

	tmpFile, err := os.CreateTemp("", "insight-reply-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmpFile.Name()

	if _, err := tmpFile.Write(audio); err != nil {
		tmpFile.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write audio to temp file: %w", err)
	}
	tmpFile.Close()

	cmd := exec.Command(name, append(args, path)...)
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		os.Remove(path)
		if err != nil && !h.stopped() {
			e.logger.Warn().Err(err).Str("player", name).Msg("Audio player exited with error")
		}
		close(h.done)
	}()

	return h, nil
}

// command resolves the player binary and its rate arguments.
func (e *ExecEngine) command(rate float64) (string, []string, error) {
	if e.player != "" {
		fields := strings.Fields(e.player)
		return fields[0], append(fields[1:], rateArgs(fields[0], rate)...), nil
	}

	for _, name := range players {
		if _, err := e.lookPath(name); err == nil {
			return name, rateArgs(name, rate), nil
		}
	}
	return "", nil, ErrNoPlayer
}

// rateArgs returns the arguments that set playback speed for known players.
// Players without a speed control play at normal rate.
func rateArgs(name string, rate float64) []string {
	speed := strconv.FormatFloat(rate, 'f', -1, 64)

	switch name {
	case "mpv":
		return []string{"--no-terminal", "--speed=" + speed}
	case "ffplay":
		// atempo accepts 0.5 to 100.
		if rate < 0.5 {
			speed = "0.5"
		}
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-af", "atempo=" + speed}
	case "afplay":
		return []string{"-r", speed}
	default:
		return nil
	}
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	stop bool
}

func (h *execHandle) Stop() error {
	h.mu.Lock()
	h.stop = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-h.done
	return nil
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}

func (h *execHandle) stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop
}
