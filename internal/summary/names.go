package summary

import (
	"context"
	"strconv"
	"sync/atomic"
)

// ChampionSource loads champion id to display name, e.g. riot.DataDragon.
type ChampionSource interface {
	ChampionNames(ctx context.Context) (map[int]string, string, error)
}

// NameTable is a read-mostly champion lookup swapped atomically on Refresh.
type NameTable struct {
	names   atomic.Pointer[map[int]string]
	version atomic.Pointer[string]
}

func NewNameTable(seed map[int]string) *NameTable {
	t := &NameTable{}
	if seed != nil {
		cp := make(map[int]string, len(seed))
		for k, v := range seed {
			cp[k] = v
		}
		t.names.Store(&cp)
	}
	return t
}

// Refresh replaces the table. On error the previous table stays in place.
func (t *NameTable) Refresh(ctx context.Context, src ChampionSource) error {
	names, version, err := src.ChampionNames(ctx)
	if err != nil {
		return err
	}
	t.names.Store(&names)
	t.version.Store(&version)
	return nil
}

// Name returns the display name for id, falling back to raw and then to the id itself.
func (t *NameTable) Name(id int, raw string) string {
	if t != nil {
		if m := t.names.Load(); m != nil {
			if n, ok := (*m)[id]; ok && n != "" {
				return n
			}
		}
	}
	if raw != "" {
		return raw
	}
	return strconv.Itoa(id)
}

func (t *NameTable) Len() int {
	if m := t.names.Load(); m != nil {
		return len(*m)
	}
	return 0
}

func (t *NameTable) Version() string {
	if v := t.version.Load(); v != nil {
		return *v
	}
	return ""
}
