package log

import "log/slog"

func UserID[T ~string](id T) slog.Attr {
	return slog.String("user_id", string(id))
}

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func StepID[T ~string](id T) slog.Attr {
	return slog.String("step_id", string(id))
}

func Intent[T ~string](id T) slog.Attr {
	return slog.String("intent", string(id))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Action[T ~string](action T) slog.Attr {
	return slog.String("action", string(action))
}

func Token[T ~string](token T) slog.Attr {
	return slog.String("token", string(token))
}

func EventType[T ~string](typ T) slog.Attr {
	return slog.String("event_type", string(typ))
}

func Version(v int64) slog.Attr {
	return slog.Int64("version", v)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
