// Package chats is the branch registry: branch name to chat id mapping,
// admin user set and per-user branch assignments, persisted as one JSON
// snapshot under the data directory.
package chats

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"invbot/internal/storage"
	"invbot/pkg/logx"
)

type snapshot struct {
	Chats     map[string]int64    `json:"chats"`
	Admins    []int64             `json:"admins"`
	UserChats map[string][]string `json:"user_chats,omitempty"`
}

type Registry struct {
	path string
	log  logx.Logger

	mu     sync.RWMutex
	chats  map[string]int64
	admins map[int64]struct{}
	users  map[int64][]string
}

func NewRegistry(path string, log logx.Logger) *Registry {
	return &Registry{
		path:   path,
		log:    log,
		chats:  map[string]int64{},
		admins: map[int64]struct{}{},
		users:  map[int64][]string{},
	}
}

// Load reads the snapshot. A missing file yields an empty registry.
func (r *Registry) Load() error {
	var snap snapshot
	if err := storage.LoadJSON(r.path, &snap); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load chat registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = map[string]int64{}
	for name, id := range snap.Chats {
		r.chats[name] = id
	}
	r.admins = map[int64]struct{}{}
	for _, id := range snap.Admins {
		r.admins[id] = struct{}{}
	}
	r.users = map[int64][]string{}
	for uid, names := range snap.UserChats {
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil {
			r.log.Error("skipping malformed user id in chat registry",
				logx.String("user_id", uid), logx.Err(err))
			continue
		}
		r.users[id] = names
	}
	return nil
}

func (r *Registry) saveLocked() error {
	snap := snapshot{
		Chats:     make(map[string]int64, len(r.chats)),
		Admins:    make([]int64, 0, len(r.admins)),
		UserChats: map[string][]string{},
	}
	for name, id := range r.chats {
		snap.Chats[name] = id
	}
	for id := range r.admins {
		snap.Admins = append(snap.Admins, id)
	}
	sort.Slice(snap.Admins, func(i, j int) bool { return snap.Admins[i] < snap.Admins[j] })
	for id, names := range r.users {
		snap.UserChats[strconv.FormatInt(id, 10)] = names
	}
	if err := storage.SaveJSON(r.path, snap); err != nil {
		return fmt.Errorf("save chat registry: %w", err)
	}
	return nil
}

// RegisterChat binds a branch name to its group chat id. Re-registering
// an existing name updates the id.
func (r *Registry) RegisterChat(name string, id int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("chat name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[name] = id
	return r.saveLocked()
}

func (r *Registry) RemoveChat(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[name]; !ok {
		return nil
	}
	delete(r.chats, name)
	for uid, names := range r.users {
		kept := names[:0]
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		r.users[uid] = kept
	}
	return r.saveLocked()
}

// Chats returns a copy of the branch name to chat id map.
func (r *Registry) Chats() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.chats))
	for name, id := range r.chats {
		out[name] = id
	}
	return out
}

// Names returns the registered branch names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.chats))
	for name := range r.chats {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsKnown reports whether the target resolves to a destination.
func (r *Registry) IsKnown(target string) bool {
	_, ok := r.Resolve(target)
	return ok
}

// Resolve maps a target to a chat id. Targets are branch names; a bare
// numeric id is accepted too so stored snapshots survive a rename.
func (r *Registry) Resolve(target string) (int64, bool) {
	target = strings.TrimSpace(target)
	r.mu.RLock()
	id, ok := r.chats[target]
	r.mu.RUnlock()
	if ok {
		return id, true
	}
	if n, err := strconv.ParseInt(target, 10, 64); err == nil {
		return n, true
	}
	return 0, false
}

func (r *Registry) IsAdmin(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[userID]
	return ok
}

func (r *Registry) AddAdmin(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[userID]; ok {
		return nil
	}
	r.admins[userID] = struct{}{}
	return r.saveLocked()
}

// UserChats returns the branch names assigned to a user. Admins see every
// branch.
func (r *Registry) UserChats(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, admin := r.admins[userID]; admin {
		out := make([]string, 0, len(r.chats))
		for name := range r.chats {
			out = append(out, name)
		}
		sort.Strings(out)
		return out
	}
	names := r.users[userID]
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}

// AssignUser grants a user access to a branch.
func (r *Registry) AssignUser(userID int64, chatName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[chatName]; !ok {
		return fmt.Errorf("unknown chat %q", chatName)
	}
	for _, n := range r.users[userID] {
		if n == chatName {
			return nil
		}
	}
	r.users[userID] = append(r.users[userID], chatName)
	return r.saveLocked()
}
