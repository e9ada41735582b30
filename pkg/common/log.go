package common

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

func InitLogger(level, appName string) (*log.Logger, error) {
	logger := log.New()
	switch strings.ToLower(level) {
	case "trace": logger.SetLevel(log.TraceLevel)
	case "debug": logger.SetLevel(log.DebugLevel)
	case "info", "": logger.SetLevel(log.InfoLevel)
	case "warn": logger.SetLevel(log.WarnLevel)
	case "error": logger.SetLevel(log.ErrorLevel)
	case "fatal": logger.SetLevel(log.FatalLevel)
	case "panic": logger.SetLevel(log.PanicLevel)
	default:
		return nil, fmt.Errorf("unsupported log level %s", level)
	}
	logger.SetFormatter(&LineFormatter{AppName: appName})
	return logger, nil
}

// MustInitLogger is InitLogger for callers holding an already validated level.
func MustInitLogger(level, appName string) *log.Logger {
	logger, err := InitLogger(level, appName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return logger
}

type LineFormatter struct {
	AppName	string
}

func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error)  {
	year, month, day := entry.Time.Date()
	hour, minute, second := entry.Time.Clock()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d/%02d/%02d %02d:%02d:%02d %s [%s] %s", year, month, day, hour, minute, second,
		strings.ToUpper(entry.Level.String()), f.AppName, entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}
