package srv

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
)

// Override is a handle a loader opened on the process's behalf.
type Override struct {
	Name   string
	Handle kernel.Handle
}

type overrideEntry struct {
	name   ipc.Name
	handle kernel.Handle
}

// OverrideTable holds service handles pre-granted by a trusted loader. Lookups
// bypass the service manager entirely. The entries never change after
// construction; ReleaseAll only empties the table. A nil table is empty.
type OverrideTable struct {
	mu      sync.RWMutex
	entries []overrideEntry
}

// NewOverrideTable builds a table from the loader's list, preserving order.
func NewOverrideTable(overrides ...Override) *OverrideTable {
	t := &OverrideTable{entries: make([]overrideEntry, 0, len(overrides))}
	for _, o := range overrides {
		t.entries = append(t.entries, overrideEntry{name: ipc.MakeName(o.Name), handle: o.Handle})
	}
	return t
}

// Len returns the number of entries.
func (t *OverrideTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Lookup returns the handle of the first entry whose name matches.
func (t *OverrideTable) Lookup(name string) (kernel.Handle, bool) {
	if t == nil {
		return 0, false
	}
	key := ipc.MakeName(name)

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.name.Equal(key) {
			return e.handle, e.handle != 0
		}
	}
	return 0, false
}

// ReleaseAll closes every handle in the table and empties it. Calling it again
// does nothing.
func (t *OverrideTable) ReleaseAll(ctx context.Context, k kernel.Kernel) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	entries := t.entries
	t.entries = nil
	t.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if e.handle == 0 {
			continue
		}
		if err := k.CloseHandle(ctx, e.handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
