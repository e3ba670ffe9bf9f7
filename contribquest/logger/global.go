package logger

import (
	"log/slog"
	"time"
)

// LogClaimOp logs a claim lifecycle operation
func LogClaimOp(op string, issueID int64, userID int64, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "claim"),
		slog.String("op", op),
		slog.Int64("issue_id", issueID),
		slog.Int64("user_id", userID),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Warn("Claim operation rejected", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Info("Claim operation completed", attrs...)
	}
}

// LogQuery logs database operations
func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs,
			slog.String("query", query),
			slog.Any("error", err),
		)...)
	} else {
		slog.Info("Query executed", append(attrs,
			slog.String("query", query),
		)...)
	}
}

// LogSystem logs system events
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
