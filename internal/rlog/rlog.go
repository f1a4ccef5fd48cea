// Package rlog provides the shared structured logging sink used across the
// router core. Config parsing and log-file management are external
// collaborators; this package only adapts a caller-supplied *logrus.Logger
// into per-component entries.
package rlog

import "github.com/sirupsen/logrus"

var root = logrus.StandardLogger()

// SetOutput installs the process-wide logger. Call once at startup from the
// external collaborator that owns log configuration.
func SetOutput(l *logrus.Logger) {
	if l != nil {
		root = l
	}
}

// For returns a component-scoped logging entry.
func For(component string) *logrus.Entry {
	return root.WithField("component", component)
}
