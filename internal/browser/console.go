package browser

import (
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// consoleFilter decides which console calls of a page are logged.
type consoleFilter struct {
	level  string
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[proto.RuntimeConsoleAPICalledType]time.Time
}

func newConsoleFilter(c Console) *consoleFilter {
	return &consoleFilter{
		level:  strings.ToLower(c.Level),
		window: Config{Console: c}.consoleThrottle(),
		now:    time.Now,
		last:   make(map[proto.RuntimeConsoleAPICalledType]time.Time),
	}
}

// enabled reports whether any console call can pass.
func (f *consoleFilter) enabled() bool {
	return f.level != "off"
}

// allow reports whether a call of type t should be logged now.
func (f *consoleFilter) allow(t proto.RuntimeConsoleAPICalledType) bool {
	if !levelWants(f.level, t) {
		return false
	}
	if f.window <= 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if last, ok := f.last[t]; ok && now.Sub(last) < f.window {
		return false
	}
	f.last[t] = now
	return true
}

func levelWants(level string, t proto.RuntimeConsoleAPICalledType) bool {
	isErr := t == proto.RuntimeConsoleAPICalledTypeError || t == proto.RuntimeConsoleAPICalledTypeAssert
	switch level {
	case "off":
		return false
	case "all":
		return true
	case "errors":
		return isErr
	default:
		return isErr || t == proto.RuntimeConsoleAPICalledTypeWarning
	}
}

// consoleText flattens console arguments into one line.
func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case !arg.Value.Nil():
			parts = append(parts, arg.Value.String())
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
