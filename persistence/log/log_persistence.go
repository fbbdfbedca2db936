// Package log_persistence is a logging-only persistence.Store: every Set
// is logged via logrus and dropped, every Get/All reports
// persistence.ErrNotImplemented, grounded on the teacher's own
// LogPersistence (persistence/log/log_persistence.go), which followed the
// identical log-and-decline shape for its reads.
package log_persistence

import (
	"github.com/sirupsen/logrus"

	P "github.com/lxyhome-bit/indirect-jmp/persistence"
)

type LogPersistence struct{}

// New constructs a new LogPersistence instance.
func New() (*LogPersistence, error) {
	return &LogPersistence{}, nil
}

func (m *LogPersistence) Set(kind P.Kind, addr uint64, targets []uint64) error {
	logrus.WithFields(logrus.Fields{
		"kind":    kind,
		"addr":    addr,
		"targets": targets,
	}).Info("Set")
	return nil
}

func (m *LogPersistence) Get(kind P.Kind, addr uint64) ([]uint64, error) {
	logrus.WithFields(logrus.Fields{
		"kind": kind,
		"addr": addr,
	}).Info("Get")
	return nil, P.ErrNotImplemented
}

func (m *LogPersistence) All(kind P.Kind) (map[uint64][]uint64, error) {
	logrus.WithFields(logrus.Fields{
		"kind": kind,
	}).Info("All")
	return nil, P.ErrNotImplemented
}
