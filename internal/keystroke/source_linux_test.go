//go:build linux

package keystroke

import (
	"context"
	"encoding/binary"
	"testing"
)

func rawEvent(typ, code uint16, value int32) []byte {
	raw := make([]byte, eventSize)
	body := raw[timevalSize:]
	binary.NativeEndian.PutUint16(body[0:2], typ)
	binary.NativeEndian.PutUint16(body[2:4], code)
	binary.NativeEndian.PutUint32(body[4:8], uint32(value))
	return raw
}

func TestDecodeEvent(t *testing.T) {
	var km Keymap

	if _, ok := decodeEvent(&km, rawEvent(0, 0, 0)); ok {
		t.Error("EV_SYN decoded as a key")
	}
	if _, ok := decodeEvent(&km, rawEvent(evKey, codeLeftShift, keyPress)); ok {
		t.Error("modifier press decoded as a key")
	}
	name, ok := decodeEvent(&km, rawEvent(evKey, 20, keyPress))
	if !ok || name != "T" {
		t.Errorf("got %q, %v", name, ok)
	}
}

func TestRepeatsKeys(t *testing.T) {
	tests := map[string]bool{
		"120013": true,  // keyboard
		"3":      false, // power button
		"17":     false, // mouse
		"zz":     false,
	}
	for mask, want := range tests {
		if got := repeatsKeys(mask); got != want {
			t.Errorf("repeatsKeys(%q) = %v", mask, got)
		}
	}
}

func TestEvdevSourceMissingDevice(t *testing.T) {
	src := New("/nonexistent/event99")
	if ok, _ := src.Available(); ok {
		t.Error("nonexistent device reported available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := src.Start(ctx); err == nil {
		src.Stop()
		t.Error("Start succeeded on a nonexistent device")
	}
}
