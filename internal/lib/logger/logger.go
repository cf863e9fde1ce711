package logger

import "log/slog"

// * Err оборачивает ошибку в атрибут лога.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
