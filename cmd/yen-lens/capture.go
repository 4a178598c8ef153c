package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zombor/yen-lens/internal/capture"
	"github.com/zombor/yen-lens/internal/i18n"
)

// runCapture drives one pass of the capture flow: open the camera, take a
// still as soon as it streams, and print the analysis.
func runCapture(ctx context.Context, s *settings, cs *cameraSettings, out io.Writer, rich bool) error {
	a, err := newApp(s)
	if err != nil {
		return err
	}
	defer a.Close()

	tr := i18n.New(*s.lang)
	machine := capture.NewMachine(newCamera(cs), a.service.CameraAnalyzer(), tr, captureOptions(s, cs))
	defer machine.Close()

	state, err := captureOnce(ctx, machine)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderResult(tr, state.Result, rich))
	return nil
}

func captureOnce(ctx context.Context, machine *capture.Machine) (capture.State, error) {
	// Observers run under the machine lock, so never block in one. A single
	// pass emits at most four transitions.
	states := make(chan capture.State, 8)
	machine.WithObserver(func(st capture.State) {
		select {
		case states <- st:
		default:
		}
	})

	if !machine.Start(ctx) {
		return capture.State{}, errors.New("camera is busy")
	}

	for {
		select {
		case <-ctx.Done():
			return capture.State{}, ctx.Err()
		case st := <-states:
			slog.Debug("Capture state", "status", st.Status)
			switch st.Status {
			case capture.Active:
				machine.Scan(ctx)
			case capture.Success:
				return st, nil
			case capture.Error:
				return st, fmt.Errorf("capture failed: %s", st.Message)
			}
		}
	}
}
