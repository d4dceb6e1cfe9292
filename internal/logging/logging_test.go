package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestNewLevels(t *testing.T) {
	for level, want := range map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.InfoLevel,
	} {
		l := New(level)
		test.That(t, l.Desugar().Core().Enabled(want), test.ShouldBeTrue)
		if want > zapcore.DebugLevel {
			test.That(t, l.Desugar().Core().Enabled(want-1), test.ShouldBeFalse)
		}
	}
}

func TestGlobal(t *testing.T) {
	test.That(t, L(), test.ShouldNotBeNil)
	test.That(t, L(), test.ShouldEqual, L())
}
