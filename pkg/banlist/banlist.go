// Package banlist stores addresses that are refused during the connection handshake.
package banlist

import (
	"net"
	"sort"
	"sync"
	"time"
)

// Entry is a single ban. A zero Until bans forever.
type Entry struct {
	IP    string    `json:"ip"`
	Until time.Time `json:"until,omitempty"`
}

// Active reports whether the ban is in effect at t.
func (e Entry) Active(t time.Time) bool {
	return e.Until.IsZero() || t.Before(e.Until)
}

// List is a ban list implementation.
type List interface {
	// Ban bans ip until the given time. A zero time bans forever.
	Ban(ip net.IP, until time.Time) error

	// Unban lifts the ban of ip.
	Unban(ip net.IP) error

	// IsBanned reports whether ip is currently banned.
	IsBanned(ip net.IP) (bool, error)

	// Entries returns all active bans.
	Entries() ([]Entry, error)

	// Close releases resources held by the list.
	Close() error
}

type memList struct {
	sync.RWMutex
	entries map[string]Entry
}

// NewMemory constructs an in-memory List.
func NewMemory() List {
	return &memList{entries: make(map[string]Entry)}
}

func (l *memList) Ban(ip net.IP, until time.Time) error {
	l.Lock()
	l.entries[ip.String()] = Entry{IP: ip.String(), Until: until}
	l.Unlock()
	return nil
}

func (l *memList) Unban(ip net.IP) error {
	l.Lock()
	delete(l.entries, ip.String())
	l.Unlock()
	return nil
}

func (l *memList) IsBanned(ip net.IP) (bool, error) {
	l.RLock()
	e, ok := l.entries[ip.String()]
	l.RUnlock()
	return ok && e.Active(time.Now()), nil
}

func (l *memList) Entries() ([]Entry, error) {
	now := time.Now()
	l.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Active(now) {
			out = append(out, e)
		}
	}
	l.RUnlock()
	sortEntries(out)
	return out, nil
}

func (l *memList) Close() error {
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].IP < entries[j].IP })
}
