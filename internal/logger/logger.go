package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger writes category-tagged, leveled log lines to stdout (colored) and
// optionally mirrors them to a plain-text file when LOG_FILE is set.
type Logger struct {
	mu   sync.Mutex
	file *os.File

	debugColor *color.Color
	infoColor  *color.Color
	warnColor  *color.Color
	errorColor *color.Color
}

func NewLogger() *Logger {
	l := &Logger{
		debugColor: color.New(color.FgCyan),
		infoColor:  color.New(color.FgGreen),
		warnColor:  color.New(color.FgYellow),
		errorColor: color.New(color.FgRed, color.Bold),
	}

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			l.file = f
		}
	}

	return l
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) write(c *color.Color, level, category, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, level, category, message)

	c.Println(line)

	if l.file != nil {
		fmt.Fprintln(l.file, line)
	}
}

func (l *Logger) Debug(category, message string) {
	if os.Getenv("LOG_LEVEL") != "debug" {
		return
	}
	l.write(l.debugColor, "DEBUG", category, message)
}

func (l *Logger) Info(category, message string) {
	l.write(l.infoColor, "INFO", category, message)
}

func (l *Logger) Warn(category, message string) {
	l.write(l.warnColor, "WARN", category, message)
}

func (l *Logger) Error(category, message string) {
	l.write(l.errorColor, "ERROR", category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.write(l.errorColor, "FATAL", category, message)
	l.Close()
	os.Exit(1)
}

// Domain helpers keep call sites short and the category vocabulary stable.

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogDatabase(operation, db, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s/%s] %s", db, operation, message))
}

func (l *Logger) LogKafka(operation, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s/%s] %s", topic, operation, message))
}

func (l *Logger) LogTicket(operation, ref, message string) {
	l.Info("TICKET", fmt.Sprintf("[%s] %s: %s", operation, ref, message))
}

func (l *Logger) LogScan(operation, ticketID, message string) {
	l.Info("SCAN", fmt.Sprintf("[%s] %s: %s", operation, ticketID, message))
}

func (l *Logger) LogProcess(stage, message string) {
	l.Info("PROCESS", fmt.Sprintf("[%s] %s", stage, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}
