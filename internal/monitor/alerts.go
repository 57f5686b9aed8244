package monitor

import "github.com/sirupsen/logrus"

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts as warnings.
type LogSink struct {
	Logger *logrus.Entry
}

func (s LogSink) Send(message string) error {
	s.Logger.Warn(message)
	return nil
}
