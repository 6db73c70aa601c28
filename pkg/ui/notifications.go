package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, appleScriptSafe(message), appleScriptSafe(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleScriptSafe(s string) string {
	return strings.NewReplacer(`"`, `'`, `\`, `/`).Replace(s)
}

// Notifier sends desktop notifications when long runs finish
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks a sender for the current platform; unsupported
// platforms get a Notifier that does nothing
func NewNotifier() *Notifier {
	switch runtime.GOOS {
	case "linux":
		return &Notifier{sender: &LinuxNotificationSender{}}
	case "darwin":
		return &Notifier{sender: &MacOSNotificationSender{}}
	default:
		return &Notifier{}
	}
}

// NewNotifierWithSender uses sender directly
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify sends a notification, ignoring delivery failures
func (n *Notifier) Notify(title, message string) {
	if n == nil || n.sender == nil {
		return
	}
	_ = n.sender.Send(title, message)
}

// JobMessage condenses a run into a notification body
func JobMessage(session string, newly, failed, records int, interrupted bool) string {
	if interrupted {
		return fmt.Sprintf("%s interrupted after %d keywords (%d records)", session, newly+failed, records)
	}
	msg := fmt.Sprintf("%s finished: %d keywords, %d records", session, newly, records)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return msg
}
