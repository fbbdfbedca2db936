// Package artifacts is an optional observer the driver notifies of every
// resolved indirect-control-flow edge once its run completes, grounded on
// the teacher's own
// ArtifactCollection/LoggingArtifactCollection (artifacts/artifacts.go),
// narrowed from the teacher's basic-block/xref vocabulary to the three
// edge kinds this engine actually discovers.
package artifacts

import "github.com/sirupsen/logrus"

// ArtifactCollection receives one call per edge of the final driver.Result,
// made by the driver after its fixed-point loop and vtable pass finish.
type ArtifactCollection interface {
	AddIndirectJump(loc, target uint64) error
	AddJumpTableEntry(base uint64, index int, target uint64) error
	AddVfuncEdge(slot, target uint64) error
}

// LoggingArtifactCollection logs every edge via logrus and never fails.
type LoggingArtifactCollection struct{}

// NewLoggingArtifactCollection constructs a new LoggingArtifactCollection.
func NewLoggingArtifactCollection() (ArtifactCollection, error) {
	return &LoggingArtifactCollection{}, nil
}

func (l LoggingArtifactCollection) AddIndirectJump(loc, target uint64) error {
	logrus.WithFields(logrus.Fields{"loc": loc, "target": target}).Info("indirect jump")
	return nil
}

func (l LoggingArtifactCollection) AddJumpTableEntry(base uint64, index int, target uint64) error {
	logrus.WithFields(logrus.Fields{"base": base, "index": index, "target": target}).Info("jump table entry")
	return nil
}

func (l LoggingArtifactCollection) AddVfuncEdge(slot, target uint64) error {
	logrus.WithFields(logrus.Fields{"slot": slot, "target": target}).Info("vfunc edge")
	return nil
}
