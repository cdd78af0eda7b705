// Package logger — логирование с префиксом сервиса через асинхронную очередь:
// вызовы из hub и обработчиков никогда не ждут запись в stdout.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const (
	asyncBufferSize = 8192
	slowThreshold   = 100 * time.Millisecond
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

var (
	prefix   string
	logLevel = levelInfo
	ch       chan string
	once     sync.Once
)

func parseLevel(s string) level {
	switch s {
	case "debug", "trace":
		return levelDebug
	default:
		return levelInfo
	}
}

func start() {
	logLevel = parseLevel(os.Getenv("LOG_LEVEL"))
	ch = make(chan string, asyncBufferSize)
	go func() {
		for line := range ch {
			log.Print(line)
		}
	}()
}

func enqueue(line string) {
	once.Do(start)
	select {
	case ch <- line:
	default:
		// очередь переполнена — строка теряется
	}
}

// SetPrefix задаёт имя сервиса, которое добавляется к каждой строке ("api").
func SetPrefix(p string) {
	prefix = p
}

// SetLevel переопределяет уровень из LOG_LEVEL (значение из конфига).
func SetLevel(s string) {
	once.Do(start)
	logLevel = parseLevel(s)
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	once.Do(start)
	if logLevel != levelDebug {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration пишет fn и длительность в мс. На уровне info — только медленные вызовы (>=100ms).
func LogDuration(fn string, started time.Time) {
	once.Do(start)
	elapsed := time.Since(started)
	if logLevel == levelDebug || elapsed >= slowThreshold {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration: defer logger.DeferLogDuration("msgRepo.Insert", time.Now())()
func DeferLogDuration(fn string, started time.Time) func() {
	return func() { LogDuration(fn, started) }
}
