/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrEmptyTitle        = errors.New("challenge title must not be empty")
	ErrEmptyMembers      = errors.New("team members must not be empty")
	ErrInvalidPoints     = errors.New("please enter a valid number of points")
	ErrNoTeams           = errors.New("please add teams first")
	ErrTeamNotFound      = errors.New("team not found")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrAwardState        = errors.New("award dialog is not at that step")
	ErrNotAdmin          = errors.New("you must be an admin to do that")
	ErrBadPassword       = errors.New("incorrect password")
	ErrBadRequest        = errors.New("malformed request")
)

// newLogger builds the process logger. Debug output is only enabled with
// --verbose; errors are always written.
func newLogger(cfg *Config) *zap.SugaredLogger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(logDate),
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.logJSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.ErrorLevel
	if cfg.verbose {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))

	return zap.New(core).Sugar()
}

func (c *Config) log() *zap.SugaredLogger {
	if c.logger == nil {
		return zap.NewNop().Sugar()
	}

	return c.logger
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	cfg.log().Infof(format, args...)
}

func logErr(cfg *Config, msg string, err error, keysAndValues ...any) {
	cfg.log().Errorw(msg, append([]any{"error", err}, keysAndValues...)...)
}

func newPage(prefix, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(prefix))
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"%s/\">%s</a></body></html>", prefix, body))

	return htmlBody.String()
}
