package ws

import (
	"sync"
)

// Channel 推送目标，一个浏览器标签页对应一个
type Channel interface {
	ID() string
	// IsOpen 底层连接仍可写
	IsOpen() bool
	// Send 非阻塞入队，返回是否接受
	Send(payload []byte) bool
}

// Observer 在身份的在线连接数变化后调用，调用时不持有锁
type Observer func(identity string, live int)

// Registry 用户身份 -> 在线连接集合
//
// 一个连接同一时刻只属于一个身份；集合为空时删除该身份。
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]map[Channel]struct{}
	owner    map[Channel]string
	observer Observer
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]map[Channel]struct{}),
		owner:   make(map[Channel]string),
	}
}

// SetObserver 设置连接数变化回调，需在开始接受连接前调用
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Associate 把连接挂到 identity 下；若之前属于其他身份则迁移。
// 已关闭的连接不会重新登记。
func (r *Registry) Associate(identity string, ch Channel) bool {
	if ch == nil || identity == "" || !ch.IsOpen() {
		return false
	}

	r.mu.Lock()
	prev, had := r.owner[ch]
	if had && prev == identity {
		r.mu.Unlock()
		return true
	}
	prevLive := -1
	if had {
		prevLive = r.removeLocked(prev, ch)
	}
	set := r.clients[identity]
	if set == nil {
		set = make(map[Channel]struct{})
		r.clients[identity] = set
	}
	set[ch] = struct{}{}
	r.owner[ch] = identity
	live := len(set)
	obs := r.observer
	r.mu.Unlock()

	if obs != nil {
		if prevLive >= 0 {
			obs(prev, prevLive)
		}
		obs(identity, live)
	}
	return true
}

// Dissociate 从所属身份中移除连接，可重复调用
func (r *Registry) Dissociate(ch Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	identity, ok := r.owner[ch]
	if !ok {
		r.mu.Unlock()
		return
	}
	live := r.removeLocked(identity, ch)
	obs := r.observer
	r.mu.Unlock()

	if obs != nil {
		obs(identity, live)
	}
}

func (r *Registry) removeLocked(identity string, ch Channel) int {
	delete(r.owner, ch)
	set := r.clients[identity]
	if set == nil {
		return 0
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.clients, identity)
		return 0
	}
	return len(set)
}

// IdentityOf 返回连接当前所属身份
func (r *Registry) IdentityOf(ch Channel) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owner[ch]
	return id, ok
}

// ChannelsFor 返回 identity 当前可写的连接快照
func (r *Registry) ChannelsFor(identity string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.clients[identity]
	if len(set) == 0 {
		return nil
	}
	out := make([]Channel, 0, len(set))
	for ch := range set {
		if ch.IsOpen() {
			out = append(out, ch)
		}
	}
	return out
}

// All 所有已登记且可写的连接
func (r *Registry) All() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.owner))
	for ch := range r.owner {
		if ch.IsOpen() {
			out = append(out, ch)
		}
	}
	return out
}

// Identities 当前有在线连接的身份
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// LiveCount identity 当前登记的连接数，与 Observer 收到的值口径一致
func (r *Registry) LiveCount(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[identity])
}

// Counts 同一时刻所有身份的连接数快照
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.clients))
	for id, set := range r.clients {
		out[id] = len(set)
	}
	return out
}

type Stats struct {
	Channels   int `json:"channels"`
	Identities int `json:"identities"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Channels: len(r.owner), Identities: len(r.clients)}
}
