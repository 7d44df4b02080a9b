package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_Plain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("backend", "sqlite").Warn("http.request",
		"method", "post",
		"path", "/auth/login",
		"status", 401,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"note", "bad password",
	)

	out := buf.String()
	for _, want := range []string{
		" WARN  http.request",
		"backend=sqlite",
		"method=POST",
		"path=/auth/login",
		"status=401",
		"class=4xx",
		"took=12ms",
		`note="bad password"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected ANSI escape in plain output: %q", out)
	}
}

func TestPrettyHandler_AuthFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.Warn("auth.refresh.reuse_detected",
		"user_id", "01JAAAAAAAAAAAAAAAAAAAAAAA",
		"family_id", "6f1c8a5e-0b7e-4c55-9d0b-6c2a8f0f9e11",
		"reason", "reuse_detected",
		"revoked", 3,
	)
	log.Error("auth.refresh.fail", "outcome", "unavailable", "err", errors.New("pool closed"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	for _, want := range []string{
		"user=01JAAAAAAAAAAAAAAAAAAAAAAA",
		"family=6f1c8a5e-0b7e-4c55-9d0b-6c2a8f0f9e11",
		"reason=reuse_detected",
		"revoked=3",
	} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("missing %q in %q", want, lines[0])
		}
	}
	if strings.Contains(lines[0], "user_id=") || strings.Contains(lines[0], "family_id=") {
		t.Fatalf("identifier keys not shortened: %q", lines[0])
	}
	if !strings.Contains(lines[1], "outcome=unavailable") || !strings.Contains(lines[1], `err="pool closed"`) {
		t.Fatalf("unexpected failure line: %q", lines[1])
	}
}

func TestPrettyHandler_AuthColors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		emit func(*slog.Logger)
		want string
	}{
		{
			name: "forced sign-out reason",
			emit: func(l *slog.Logger) { l.Info("auth.refresh.stale_version", "reason", "session_version") },
			want: "reason=" + ansiRed + "session_version" + ansiReset,
		},
		{
			name: "routine reason",
			emit: func(l *slog.Logger) { l.Info("auth.logout", "reason", "logout") },
			want: "reason=" + ansiDim + "logout" + ansiReset,
		},
		{
			name: "rejection reason",
			emit: func(l *slog.Logger) { l.Info("session.resolve.reject", "reason", "token_expired") },
			want: "reason=" + ansiYellow + "token_expired" + ansiReset,
		},
		{
			name: "ok outcome",
			emit: func(l *slog.Logger) { l.Info("auth.login", "outcome", "ok") },
			want: "outcome=" + ansiGreen + "ok" + ansiReset,
		},
		{
			name: "error outcome",
			emit: func(l *slog.Logger) { l.Info("auth.login", "outcome", "error") },
			want: "outcome=" + ansiRed + "error" + ansiReset,
		},
		{
			name: "identifier",
			emit: func(l *slog.Logger) { l.Info("auth.logout", "user_id", "u1") },
			want: "user=" + ansiCyan + "u1" + ansiReset,
		},
		{
			name: "failure event",
			emit: func(l *slog.Logger) { l.Info("auth.refresh.persist.fail") },
			want: ansiRed + "auth.refresh.persist.fail" + ansiReset,
		},
		{
			name: "warning event",
			emit: func(l *slog.Logger) { l.Info("auth.login.rate_limited") },
			want: ansiYellow + "auth.login.rate_limited" + ansiReset,
		},
		{
			name: "auth event",
			emit: func(l *slog.Logger) { l.Info("auth.sessions.ended") },
			want: ansiBright + "auth.sessions.ended" + ansiReset,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.emit(slog.New(newPrettyHandler(&buf, nil, true)))
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("missing %q in %q", tc.want, buf.String())
			}
		})
	}
}

func TestPrettyHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.WithGroup("refresh").With("family_id", "f1").Info("auth.rotate", slog.Group("token", "jti", "j1"))

	out := buf.String()
	for _, want := range []string{"refresh.family_id=f1", "refresh.token.jti=j1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))
	log.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}

	log.Error("loud")
	if !strings.Contains(buf.String(), ansiRed+"ERROR"+ansiReset) {
		t.Fatalf("expected colored error label, got %q", buf.String())
	}
}
