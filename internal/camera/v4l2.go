package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

var commandContext = exec.CommandContext

// V4L2Config configures a V4L2 camera
type V4L2Config struct {
	// DevicePath skips discovery and always uses this node
	DevicePath string
	// FFmpeg is the binary used to grab frames
	FFmpeg string
	// LockDir holds the per-device lock files
	LockDir string
}

// V4L2 implements Camera on Linux video4linux devices
type V4L2 struct {
	cfg    V4L2Config
	logger *slog.Logger

	mu      sync.Mutex
	devices []Device
	cached  bool
}

// NewV4L2 creates a V4L2 camera
func NewV4L2(cfg V4L2Config, logger *slog.Logger) *V4L2 {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.LockDir == "" {
		cfg.LockDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &V4L2{cfg: cfg, logger: logger.With("component", "camera")}
}

// Devices lists the capture devices, crawling sysfs on first use
func (v *V4L2) Devices(ctx context.Context) ([]Device, error) {
	if v.cfg.DevicePath != "" {
		return []Device{{Path: v.cfg.DevicePath, Name: filepath.Base(v.cfg.DevicePath), Facing: FacingAny}}, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cached {
		return v.devices, nil
	}
	devices, err := discoverDevices(ctx)
	if err != nil {
		return nil, err
	}
	v.devices = devices
	v.cached = true
	v.logger.Debug("Discovered cameras", "count", len(devices))
	return devices, nil
}

// Invalidate forgets the discovered devices after a hotplug event
func (v *V4L2) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.devices = nil
	v.cached = false
}

// Open acquires an exclusive session on the device selected by c
func (v *V4L2) Open(ctx context.Context, c Constraints) (Session, error) {
	devices, err := v.Devices(ctx)
	if err != nil {
		return nil, err
	}

	var device Device
	if v.cfg.DevicePath != "" {
		// An operator-configured device satisfies any facing constraint
		device = devices[0]
	} else if device, err = selectDevice(devices, c); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(v.cfg.LockDir, "yen-lens-"+filepath.Base(device.Path)+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", device.Path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is locked by another session", ErrNotReadable, device.Path)
	}

	file, err := os.OpenFile(device.Path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		_ = lock.Unlock()
		return nil, classifyOpenError(err)
	}

	v.logger.Info("Camera session opened", "device", device.Path, "name", device.Name, "facing", device.Facing.String())
	return &v4l2Session{
		device: device,
		file:   file,
		lock:   lock,
		ffmpeg: v.cfg.FFmpeg,
		logger: v.logger,
	}, nil
}

// classifyOpenError maps device node errors onto the acquisition sentinels
func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %v", ErrNotReadable, err)
	default:
		return fmt.Errorf("opening camera: %w", err)
	}
}

// classifyFFmpegError maps ffmpeg's stderr onto the acquisition sentinels
func classifyFFmpegError(err error, stderr string) error {
	switch {
	case strings.Contains(stderr, "Permission denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, stderr)
	case strings.Contains(stderr, "No such file or directory"), strings.Contains(stderr, "No such device"):
		return fmt.Errorf("%w: %s", ErrNotFound, stderr)
	case strings.Contains(stderr, "Device or resource busy"):
		return fmt.Errorf("%w: %s", ErrNotReadable, stderr)
	default:
		return fmt.Errorf("ffmpeg capture: %w: %s", err, stderr)
	}
}

type v4l2Session struct {
	device Device
	file   *os.File
	lock   *flock.Flock
	ffmpeg string
	logger *slog.Logger

	mu       sync.Mutex
	released bool
}

// Play grabs a warm-up frame; the stream counts as playing once one arrives
func (s *v4l2Session) Play(ctx context.Context) error {
	_, err := s.grab(ctx)
	return err
}

// Frame captures one still at the device's current format
func (s *v4l2Session) Frame(ctx context.Context) (image.Image, error) {
	data, err := s.grab(ctx)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

func (s *v4l2Session) grab(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return nil, ErrSessionReleased
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-i", s.device.Path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, s.ffmpeg, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyFFmpegError(err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg capture: no frame from %s", s.device.Path)
	}
	return stdout.Bytes(), nil
}

// Release closes the device and drops the lock. Calling it again is a no-op.
func (s *v4l2Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing device: %w", err))
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("releasing lock: %w", err))
	}
	s.logger.Info("Camera session released", "device", s.device.Path)
	return errors.Join(errs...)
}
