package logging

import (
	"github.com/sirupsen/logrus"
)

// CommandLineFormatter prints the bare message, which is what a CLI user
// wants to see instead of timestamped server logs.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Message + "\n"), nil
}
