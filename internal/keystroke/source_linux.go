//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EvdevSource reads key events from /dev/input on Linux.
type EvdevSource struct {
	BaseSource
	device  string
	devices []string
	done    chan struct{}
}

func newPlatformSource(device string) Source {
	return &EvdevSource{device: device}
}

// Available checks that at least one keyboard device can be opened.
func (s *EvdevSource) Available() (bool, string) {
	devices, err := s.candidates()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err == nil {
			unix.Close(fd)
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}
	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (s *EvdevSource) candidates() ([]string, error) {
	if s.device != "" {
		return []string{s.device}, nil
	}
	return findKeyboardDevices()
}

// findKeyboardDevices lists event devices that report keyboard keys.
func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var devices []string
	seen := map[string]bool{}
	add := func(dev string) {
		if resolved, err := filepath.EvalSymlinks(dev); err == nil {
			dev = resolved
		}
		if !seen[dev] {
			seen[dev] = true
			devices = append(devices, dev)
		}
	}

	scanner := bufio.NewScanner(f)
	var handler string
	isKeyboard := false
	flush := func() {
		if isKeyboard && handler != "" {
			add(handler)
		}
		handler = ""
		isKeyboard = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			fields := strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
			hasKbd := false
			for _, field := range fields {
				if strings.HasPrefix(field, "event") {
					handler = "/dev/input/" + field
				}
				if field == "kbd" {
					hasKbd = true
				}
			}
			isKeyboard = isKeyboard || hasKbd
		case strings.HasPrefix(line, "B: EV="):
			isKeyboard = isKeyboard && repeatsKeys(strings.TrimPrefix(line, "B: EV="))
		case line == "":
			flush()
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return devices, err
	}

	matches, _ := filepath.Glob("/dev/input/by-id/*-event-kbd")
	for _, m := range matches {
		add(m)
	}
	return devices, nil
}

// repeatsKeys reports whether an EV bitmask has EV_KEY and EV_REP set.
// Power buttons and lid switches carry "kbd" handlers but never repeat.
func repeatsKeys(hexMask string) bool {
	mask, err := strconv.ParseUint(strings.TrimSpace(hexMask), 16, 64)
	if err != nil {
		return false
	}
	const evKeyBit, evRepBit = 1 << 0x01, 1 << 0x14
	return mask&evKeyBit != 0 && mask&evRepBit != 0
}

// Start opens every readable keyboard device and begins delivering events.
func (s *EvdevSource) Start(ctx context.Context) error {
	devices, err := s.candidates()
	if err != nil || len(devices) == 0 {
		return ErrNotAvailable
	}

	var fds []int
	var openErr error
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			openErr = err
			continue
		}
		fds = append(fds, fd)
	}
	if len(fds) == 0 {
		if errors.Is(openErr, unix.EACCES) || errors.Is(openErr, unix.EPERM) {
			return ErrPermissionDenied
		}
		return fmt.Errorf("%w: %v", ErrNotAvailable, openErr)
	}

	runCtx, err := s.begin(ctx)
	if err != nil {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return err
	}

	s.devices = devices
	s.done = make(chan struct{})
	go s.readLoop(runCtx, fds)
	return nil
}

var (
	timevalSize = int(unsafe.Sizeof(unix.Timeval{}))
	eventSize   = timevalSize + 8
)

const pollTimeoutMs = 100

func (s *EvdevSource) readLoop(ctx context.Context, fds []int) {
	defer close(s.done)
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()

	var km Keymap
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	buf := make([]byte, eventSize*64)

	for ctx.Err() == nil {
		n, err := unix.Poll(pfds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}

		for i := range pfds {
			if pfds[i].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				// Device unplugged; stop polling it.
				pfds[i].Fd = -1
				continue
			}
			if pfds[i].Revents&unix.POLLIN == 0 {
				continue
			}
			read, err := unix.Read(int(pfds[i].Fd), buf)
			if err != nil || read < eventSize {
				continue
			}
			for off := 0; off+eventSize <= read; off += eventSize {
				name, ok := decodeEvent(&km, buf[off:off+eventSize])
				if !ok {
					continue
				}
				if !s.Deliver(Event{Name: name, Timestamp: time.Now()}) {
					return
				}
			}
		}
	}
}

// decodeEvent parses one struct input_event.
func decodeEvent(km *Keymap, raw []byte) (string, bool) {
	body := raw[timevalSize:]
	typ := binary.NativeEndian.Uint16(body[0:2])
	if typ != evKey {
		return "", false
	}
	code := binary.NativeEndian.Uint16(body[2:4])
	value := int32(binary.NativeEndian.Uint32(body[4:8]))
	return km.Translate(code, value)
}

// Stop stops reading and waits for the reader to exit.
func (s *EvdevSource) Stop() error {
	if !s.end() {
		return nil
	}
	if s.done != nil {
		<-s.done
	}
	return nil
}

// Devices returns the device paths considered at Start.
func (s *EvdevSource) Devices() []string {
	return s.devices
}
