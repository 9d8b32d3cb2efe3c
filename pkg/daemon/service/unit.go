package service

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitState is the live state of the user unit as reported over D-Bus.
type UnitState struct {
	LoadState   string
	ActiveState string
	SubState    string
	MainPID     int
	MemoryBytes uint64
}

// String renders e.g. "active (running) pid 812".
func (u UnitState) String() string {
	s := u.ActiveState
	if u.SubState != "" {
		s += " (" + u.SubState + ")"
	}
	if u.MainPID > 0 {
		s += fmt.Sprintf(" pid %d", u.MainPID)
	}
	return s
}

// Running reports whether systemd considers the forwarder up.
func (u UnitState) Running() bool {
	return u.ActiveState == "active" || u.ActiveState == "reloading"
}

// QueryUnit asks the user systemd instance for the unit's state.
func QueryUnit(ctx context.Context) (UnitState, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return UnitState{}, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{unitName})
	if err != nil {
		return UnitState{}, fmt.Errorf("list units: %w", err)
	}
	if len(units) == 0 {
		return UnitState{}, fmt.Errorf("unit %s not loaded", unitName)
	}

	u := units[0]
	st := UnitState{LoadState: u.LoadState, ActiveState: u.ActiveState, SubState: u.SubState}
	if st.Running() {
		props, err := conn.GetUnitTypePropertiesContext(ctx, unitName, "Service")
		if err == nil {
			if pid, ok := props["MainPID"].(uint32); ok && pid > 0 {
				st.MainPID = int(pid)
			}
			if mem, ok := props["MemoryCurrent"].(uint64); ok {
				st.MemoryBytes = mem
			}
		}
	}
	return st, nil
}

// Restart restarts the unit and waits for the job to finish.
func Restart(ctx context.Context) error {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	ch := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unitName, "replace", ch); err != nil {
		return fmt.Errorf("restart %s: %w", unitName, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("restart %s: job result %q", unitName, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
