package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

const sysClassVideo = "/sys/class/video4linux"

// Device is a V4L2 capture node
type Device struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Facing Facing `json:"-"`
}

// inferFacing guesses the facing mode from the driver-reported name
func inferFacing(name string) Facing {
	lower := strings.ToLower(name)
	for _, hint := range []string{"rear", "back", "environment", "world"} {
		if strings.Contains(lower, hint) {
			return FacingEnvironment
		}
	}
	for _, hint := range []string{"front", "user", "facetime", "integrated", "webcam"} {
		if strings.Contains(lower, hint) {
			return FacingUser
		}
	}
	return FacingAny
}

// selectDevice picks the device for c. Without Exact, a device with another
// facing is accepted when none matches.
func selectDevice(devices []Device, c Constraints) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNotFound
	}
	if c.Facing == FacingAny {
		return devices[0], nil
	}
	for _, d := range devices {
		if d.Facing == c.Facing {
			return d, nil
		}
	}
	if c.Exact {
		return Device{}, fmt.Errorf("%w: want %s", ErrOverconstrained, c.Facing)
	}
	// Unknown facing beats the opposite facing
	for _, d := range devices {
		if d.Facing == FacingAny {
			return d, nil
		}
	}
	return devices[0], nil
}

// videoMatcher matches video4linux nodes
func videoMatcher(action string) netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rule := netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": "video4linux"},
	}
	if action != "" {
		rule.Action = &action
	}
	rules.AddRule(rule)
	return rules
}

// discoverDevices crawls sysfs for V4L2 capture nodes
func discoverDevices(ctx context.Context) ([]Device, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, videoMatcher(""))

	// abandon stops the crawler and drains it so its goroutine can exit
	abandon := func() {
		select {
		case quit <- struct{}{}:
		default:
		}
		go func() {
			for range queue {
			}
		}()
	}

	var devices []Device
	for {
		select {
		case <-ctx.Done():
			abandon()
			return nil, ctx.Err()
		case err := <-errs:
			abandon()
			return nil, fmt.Errorf("crawling video devices: %w", err)
		case dev, ok := <-queue:
			if !ok {
				return devices, nil
			}
			if d, ok := deviceFromEnv(dev.Env); ok {
				devices = append(devices, d)
			}
		}
	}
}

// deviceFromEnv builds a Device from uevent variables, skipping metadata nodes
func deviceFromEnv(env map[string]string) (Device, bool) {
	devname := filepath.Base(env["DEVNAME"])
	if devname == "" || devname == "." {
		return Device{}, false
	}
	// UVC cameras expose a metadata node next to each capture node; only index 0 streams frames
	if index, err := os.ReadFile(filepath.Join(sysClassVideo, devname, "index")); err == nil {
		if strings.TrimSpace(string(index)) != "0" {
			return Device{}, false
		}
	}
	name := devname
	if raw, err := os.ReadFile(filepath.Join(sysClassVideo, devname, "name")); err == nil {
		name = strings.TrimSpace(string(raw))
	}
	return Device{
		Path:   filepath.Join("/dev", devname),
		Name:   name,
		Facing: inferFacing(name),
	}, true
}
