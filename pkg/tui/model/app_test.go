package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/logcat"
	"github.com/modoterra/logcatotel/pkg/transport/uds"
)

func line(level logcat.Level, tag, msg string) logcat.LogLine {
	return logcat.LogLine{Timestamp: 1722132942768, UID: "root", PID: 1, TID: 1, Level: level, Tag: tag, Msg: msg}
}

func feed(a App, lines ...logcat.LogLine) App {
	for _, l := range lines {
		m, _ := a.Update(lineMsg(l))
		a = m.(App)
	}
	return a
}

func press(a App, keys ...string) App {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ := a.Update(msg)
		a = m.(App)
	}
	return a
}

func TestRingBufferKeepsLastLines(t *testing.T) {
	a := New("/tmp/test.sock")
	for i := range MaxLines + 25 {
		a = feed(a, line(logcat.LevelInfo, "t", fmt.Sprintf("m%d", i)))
	}
	if len(a.lines) != MaxLines {
		t.Fatalf("kept %d lines, want %d", len(a.lines), MaxLines)
	}
	if a.lines[0].Msg != "m25" {
		t.Errorf("oldest = %q, want m25", a.lines[0].Msg)
	}
	if a.selectedIdx != MaxLines-1 {
		t.Errorf("follow selection = %d", a.selectedIdx)
	}
}

func TestLevelFilter(t *testing.T) {
	a := feed(New(""),
		line(logcat.LevelVerbose, "a", "v"),
		line(logcat.LevelDebug, "a", "d"),
		line(logcat.LevelWarn, "a", "w"),
		line(logcat.LevelError, "a", "e"),
	)

	tests := []struct {
		key  string
		want int
	}{
		{"v", 4},
		{"d", 3},
		{"i", 2},
		{"w", 2},
		{"e", 1},
	}
	for _, tt := range tests {
		a = press(a, tt.key)
		if got := len(a.visibleLines()); got != tt.want {
			t.Errorf("min level %s: %d visible, want %d", tt.key, got, tt.want)
		}
	}
}

func TestSearchMatchesTagAndMessage(t *testing.T) {
	a := feed(New(""),
		line(logcat.LevelInfo, "ActivityManager", "Start proc 4321"),
		line(logcat.LevelInfo, "auditd", "policy loaded"),
		line(logcat.LevelError, "AndroidRuntime", "FATAL EXCEPTION: main"),
	)

	a = press(a, "/", "a", "c", "t", "i", "v")
	if a.mode != ModeSearch {
		t.Fatal("expected search mode")
	}
	if got := a.visibleLines(); len(got) != 1 || got[0].Tag != "ActivityManager" {
		t.Errorf("tag search: %+v", got)
	}

	a = press(a, "esc", "/", "f", "a", "t", "a", "l", "enter")
	if a.mode != ModeNormal {
		t.Fatal("expected normal mode after enter")
	}
	if got := a.visibleLines(); len(got) != 1 || got[0].Tag != "AndroidRuntime" {
		t.Errorf("message search: %+v", got)
	}
}

func TestPauseDropsAndCounts(t *testing.T) {
	a := feed(New(""), line(logcat.LevelInfo, "a", "before"))
	a = press(a, " ")
	if !a.paused {
		t.Fatal("space should pause")
	}
	a = feed(a, line(logcat.LevelInfo, "a", "x"), line(logcat.LevelInfo, "a", "y"))
	if len(a.lines) != 1 || a.missed != 2 {
		t.Errorf("paused: lines=%d missed=%d", len(a.lines), a.missed)
	}
	a = press(a, " ")
	a = feed(a, line(logcat.LevelInfo, "a", "after"))
	if len(a.lines) != 2 || a.missed != 0 {
		t.Errorf("resumed: lines=%d missed=%d", len(a.lines), a.missed)
	}
}

func TestNavigationLeavesFollow(t *testing.T) {
	a := feed(New(""),
		line(logcat.LevelInfo, "a", "1"),
		line(logcat.LevelInfo, "a", "2"),
		line(logcat.LevelInfo, "a", "3"),
	)
	a = press(a, "k")
	if a.follow || a.selectedIdx != 1 {
		t.Fatalf("after k: follow=%v idx=%d", a.follow, a.selectedIdx)
	}
	a = feed(a, line(logcat.LevelInfo, "a", "4"))
	if a.selectedIdx != 1 {
		t.Errorf("selection moved while not following: %d", a.selectedIdx)
	}
	if sel := a.selectedLine(); sel == nil || sel.Msg != "2" {
		t.Errorf("selected = %+v", sel)
	}
	a = press(a, "G")
	if !a.follow || a.selectedIdx != 3 {
		t.Errorf("after G: follow=%v idx=%d", a.follow, a.selectedIdx)
	}
}

func TestDecodeEvent(t *testing.T) {
	evt, err := uds.NewEvent(uds.EventLogcatLine, line(logcat.LevelWarn, "auditd", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := decodeEvent(evt).(lineMsg); !ok || got.Tag != "auditd" {
		t.Errorf("line event decoded to %#v", decodeEvent(evt))
	}

	evt, _ = uds.NewEvent(uds.EventIngestStats, core.Snapshot{State: "running", Emitted: 7})
	if got, ok := decodeEvent(evt).(statsMsg); !ok || got.Emitted != 7 {
		t.Errorf("stats event decoded to %#v", decodeEvent(evt))
	}

	bad := uds.Message{Type: uds.MsgTypeEvt, Method: uds.EventLogcatLine, Data: json.RawMessage(`"nope"`)}
	if _, ok := decodeEvent(bad).(badEventMsg); !ok {
		t.Errorf("bad payload decoded to %#v", decodeEvent(bad))
	}

	if _, ok := decodeEvent(uds.Message{Method: "other"}).(ignoredMsg); !ok {
		t.Error("unknown event should be ignored")
	}
}

func TestViewRendersStatusAndRows(t *testing.T) {
	a := feed(New(""), line(logcat.LevelError, "AndroidRuntime", "FATAL EXCEPTION: main"))
	m, _ := a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	a = m.(App)
	m, _ = a.Update(statsMsg(core.Snapshot{State: "running", Pid: 99, LinesRead: 3, Emitted: 2, Rejected: 1}))
	a = m.(App)
	a.connected = true

	out := a.View()
	for _, want := range []string{"AndroidRuntime: FATAL EXCEPTION: main", "running pid 99", "rejected 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
