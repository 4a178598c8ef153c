package main

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/yen-lens/internal/camera"
	"github.com/zombor/yen-lens/internal/capture"
	"github.com/zombor/yen-lens/internal/i18n"
	"github.com/zombor/yen-lens/internal/lens"
	"github.com/zombor/yen-lens/internal/telegram"
)

type serveSettings struct {
	port          *int
	camera        *bool
	cam           *cameraSettings
	telegramToken *string
	authUser      *string
	authPass      *string
}

func registerServeSettings(fs *ff.FlagSet) *serveSettings {
	return &serveSettings{
		port:          fs.IntLong("port", 8080, "HTTP server port"),
		camera:        fs.BoolLong("camera", "Drive a local camera from the web app"),
		cam:           registerCameraSettings(fs),
		telegramToken: fs.StringLong("telegram-token", "", "Telegram bot token (the bot is off when empty)"),
		authUser:      fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:      fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
	}
}

func runServe(ctx context.Context, s *settings, sv *serveSettings) error {
	a, err := newApp(s)
	if err != nil {
		return err
	}
	defer a.Close()

	tr := i18n.New(*s.lang)

	var machine *capture.Machine
	if *sv.camera {
		cam := newCamera(sv.cam)
		monitor := camera.NewMonitor(cam, slog.Default())
		if err := monitor.Start(ctx); err != nil {
			slog.Warn("Camera hotplug monitor unavailable", "error", err)
		}
		defer monitor.Stop()

		machine = capture.NewMachine(cam, a.service.CameraAnalyzer(), tr, captureOptions(s, sv.cam))
		defer machine.Close()
		slog.Info("Camera enabled", "device", *sv.cam.device, "exact_facing", *sv.cam.exact)
	}

	if *sv.telegramToken != "" {
		api, err := tgbotapi.NewBotAPI(*sv.telegramToken)
		if err != nil {
			return fmt.Errorf("connecting to telegram: %w", err)
		}
		slog.Info("Telegram bot authorized", "user", api.Self.UserName)
		bot := telegram.New(api, a.service, tr, slog.Default())
		go func() {
			if err := bot.Run(ctx); err != nil {
				slog.Error("Telegram bot error", "error", err)
			}
		}()
	}

	basicAuth := lens.BasicAuth{
		Username: *sv.authUser,
		Password: *sv.authPass,
	}
	server := lens.NewServer(a.service, machine, tr, basicAuth)

	addr := fmt.Sprintf(":%d", *sv.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "history", a.service.HistoryEnabled())
	if *sv.authUser != "" || *sv.authPass != "" {
		slog.Info("Basic auth enabled", "user", *sv.authUser)
	}

	return server.Start(ctx, addr)
}

func newCamera(cs *cameraSettings) *camera.V4L2 {
	return camera.NewV4L2(camera.V4L2Config{
		DevicePath: *cs.device,
		FFmpeg:     *cs.ffmpeg,
		LockDir:    *cs.lockDir,
	}, slog.Default())
}

func captureOptions(s *settings, cs *cameraSettings) capture.Options {
	return capture.Options{
		Timeout: *s.timeout,
		Constraints: camera.Constraints{
			Facing: camera.FacingEnvironment,
			Exact:  *cs.exact,
		},
		Logger: slog.Default(),
	}
}
