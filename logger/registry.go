package logger

import "sync"

// named holds loggers registered per component.
var named sync.Map // string -> *Logger

// Register pins the logger returned by Get(name).
func Register(name string, l *Logger) {
	named.Store(name, l)
}

// Get returns the logger registered under name, or the global logger tagged
// with component=name.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
