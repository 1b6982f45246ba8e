package auth

import (
	"sync"

	"github.com/hitoshi/bookclub/internal/model"
)

// Event は認証状態の変化の種類。
type Event string

const (
	// EventSignedIn はサインイン完了を表す。
	EventSignedIn Event = "SIGNED_IN"
	// EventSignedOut はサインアウトを表す。
	EventSignedOut Event = "SIGNED_OUT"
)

// Listener は認証状態の変化を受け取るコールバック。
// SIGNED_OUTの場合もsessionには対象セッションが渡される。
type Listener func(event Event, session *model.Session)

// Notifier は認証状態の変化をプロセス内の購読者に配信する。
type Notifier struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
}

// NewNotifier はNotifierを生成する。
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe はリスナーを登録し、解除用のSubscriptionを返す。
func (n *Notifier) Subscribe(listener Listener) *Subscription {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = listener
	n.mu.Unlock()

	return &Subscription{
		unsubscribe: func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		},
	}
}

// OnAuthStateChange はSubscribeと同じ。tenant.Sourceとして渡せるようにする。
func (n *Notifier) OnAuthStateChange(listener Listener) *Subscription {
	return n.Subscribe(listener)
}

// Publish は登録済みの全リスナーにイベントを配信する。
// リスナーはロック外で呼び出されるため、リスナー内での購読解除も安全に行える。
func (n *Notifier) Publish(event Event, session *model.Session) {
	n.mu.RLock()
	listeners := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		listeners = append(listeners, l)
	}
	n.mu.RUnlock()

	for _, l := range listeners {
		l(event, session)
	}
}

// ListenerCount は登録中のリスナー数を返す。
func (n *Notifier) ListenerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Subscription は購読の解除ハンドル。
type Subscription struct {
	once        sync.Once
	unsubscribe func()
}

// Unsubscribe は購読を解除する。複数回呼んでも解除は1回だけ行われる。
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.unsubscribe)
}
