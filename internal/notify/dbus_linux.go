//go:build linux

package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	// SoundName is the freedesktop sound theme entry played on a firing.
	SoundName = "message-new-instant"

	beepExpireMs   = 600
	noticeExpireMs = 4000
)

// DBusNotifier talks to the freedesktop notification daemon.
type DBusNotifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string

	mu     sync.Mutex
	beepID uint32
}

func newPlatformNotifier(appName string) (Notifier, error) {
	return NewDBus(appName)
}

// NewDBus connects to the session bus and checks that a notification daemon
// owns its well-known name.
func NewDBus(appName string) (*DBusNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect to session bus: %v", ErrUnavailable, err)
	}

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, notificationsService).Store(&owned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !owned {
		return nil, fmt.Errorf("%w: no notification daemon running", ErrUnavailable)
	}

	return &DBusNotifier{
		conn:    conn,
		obj:     conn.Object(notificationsService, notificationsPath),
		appName: appName,
	}, nil
}

func (d *DBusNotifier) send(replaces uint32, summary, body string, hints map[string]dbus.Variant, expireMs int32) (uint32, error) {
	var id uint32
	call := d.obj.Call(notificationsInterface+".Notify", 0,
		d.appName, replaces, "", summary, body, []string{}, hints, expireMs)
	if call.Err != nil {
		return 0, fmt.Errorf("notify: %w", call.Err)
	}
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify reply: %w", err)
	}
	return id, nil
}

// Beep shows a short transient notification carrying a sound hint. Repeated
// beeps replace each other instead of stacking.
func (d *DBusNotifier) Beep() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{
		"sound-name": dbus.MakeVariant(SoundName),
		"transient":  dbus.MakeVariant(true),
		"urgency":    dbus.MakeVariant(byte(0)),
	}
	id, err := d.send(d.beepID, d.appName, "", hints, beepExpireMs)
	if err != nil {
		return err
	}
	d.beepID = id
	return nil
}

// Notify shows a regular notification without sound.
func (d *DBusNotifier) Notify(summary, body string) error {
	hints := map[string]dbus.Variant{
		"suppress-sound": dbus.MakeVariant(true),
	}
	_, err := d.send(0, summary, body, hints, noticeExpireMs)
	return err
}
