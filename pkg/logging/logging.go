package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used throughout vision-runner. It is
// satisfied by *logrus.Logger and *logrus.Entry, so components can be handed
// either a root logger or a derived component logger.
type Logger interface {
	logrus.FieldLogger
	Writer() *io.PipeWriter
}
