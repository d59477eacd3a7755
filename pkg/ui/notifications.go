package ui

import (
	"fmt"
	"os/exec"
	"runtime"

	"bicodown/pkg/harvester"
)

// NotificationSender interface for platform-specific notification implementations
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
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier sends desktop notifications when a long harvest ends
type Notifier struct {
	sender NotificationSender
}

// NewNotifier creates a new Notifier based on the current platform.
// Platforms without a sender only print.
func NewNotifier() *Notifier {
	var sender NotificationSender

	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	}

	return &Notifier{sender: sender}
}

// NewNotifierWithSender creates a Notifier over an explicit sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// SendNotification sends a desktop notification and prints to console
func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(Output, "\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(Output, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(Output, "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

// NotifyResult reports the outcome of a harvest run
func (n *Notifier) NotifyResult(res *harvester.Result) {
	if res == nil {
		return
	}
	title := "bicodown: " + res.Title
	switch {
	case res.Err != nil:
		n.SendError(title, res.Err.Error())
	case res.State == harvester.StateAborted:
		n.SendNotification(title, fmt.Sprintf("stopped at %d/%d comments", res.Downloaded, res.Total))
	default:
		n.SendSuccess(title, fmt.Sprintf("%d comments from %d regions", res.Downloaded, len(res.Regions)))
	}
}

func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		// notifications are best effort
		_ = n.sender.Send(title, message)
	}
}
