package debug

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//
// Debug output is controlled by the COMPLDEBUG environment variable,
// which can be a list of selectors (e.g., "GATE;WAITQ").  Config may
// add selectors at runtime with SetLabels.
//

const ENVVAR = "COMPLDEBUG"

var (
	mu     sync.Mutex
	labels map[Tselector]bool
	name   = "compld"
	log    *zap.SugaredLogger
)

func init() {
	labels = parseLabels(os.Getenv(ENVVAR))
	log = newLogger()
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

func parseLabels(s string) map[Tselector]bool {
	m := make(map[Tselector]bool)
	if s == "" {
		return m
	}
	for _, l := range strings.Split(s, ";") {
		if l = strings.TrimSpace(l); l != "" {
			m[Tselector(l)] = true
		}
	}
	return m
}

// Name sets the program name printed in front of each line.
func Name(n string) {
	mu.Lock()
	defer mu.Unlock()
	name = n
}

// SetLabels enables the selectors in s, in addition to those from
// the environment.
func SetLabels(s string) {
	mu.Lock()
	defer mu.Unlock()
	for l := range parseLabels(s) {
		labels[l] = true
	}
}

func IsLabelSet(label Tselector) bool {
	mu.Lock()
	defer mu.Unlock()
	return labels[label]
}

func DPrintf(label Tselector, format string, v ...interface{}) {
	if label == NEVER {
		return
	}
	mu.Lock()
	ok := labels[label] || label == ALWAYS || label == ERROR
	l, n := log, name
	mu.Unlock()
	if ok {
		msg := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
		if label == ERROR || strings.HasSuffix(string(label), string(ERR)) {
			l.Errorf("%v %v %v", n, label, msg)
		} else {
			l.Infof("%v %v %v", n, label, msg)
		}
	}
}
