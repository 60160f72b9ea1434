package window

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// MessageWindowService keeps the message window of the active channel
// view fresh: bidirectional pagination, point-in-time checkout, and
// best-effort read-horizon advancement. One service instance backs one
// session's active view, so it has a single logical writer; plain
// mutual exclusion is enough.
//
// Two locks: mu guards the window and view state, fetchMu keeps at most
// one store fetch in flight. Concurrent checkouts serialize on fetchMu
// and each integrates exactly once under mu.
type MessageWindowService struct {
	log      *slog.Logger
	store    contract.MessageStore
	userID   domain.SubjectID
	pageSize int

	mu        sync.Mutex
	window    *MessageWindow
	channelID domain.SubjectID
	lastRead  time.Time
	// viewGen counts channel switches. Fetch results carry the
	// generation they were issued under; a batch from a previous
	// generation is dropped instead of polluting the fresh window.
	viewGen uint64

	fetchMu sync.Mutex

	viewCtx    context.Context
	viewCancel context.CancelFunc

	changes chan struct{}
}

func NewMessageWindowService(log *slog.Logger, store contract.MessageStore, userID domain.SubjectID, pageSize, maxWindow int) *MessageWindowService {
	ctx, cancel := context.WithCancel(context.Background())
	return &MessageWindowService{
		log:        log,
		store:      store,
		userID:     userID,
		pageSize:   pageSize,
		window:     NewMessageWindow(maxWindow),
		viewCtx:    ctx,
		viewCancel: cancel,
		changes:    make(chan struct{}, 1),
	}
}

// Changes signals that the window content changed. Buffered so a slow
// consumer coalesces notifications instead of blocking integration.
func (s *MessageWindowService) Changes() <-chan struct{} {
	return s.changes
}

// ActiveChannel returns the channel the window currently views.
func (s *MessageWindowService) ActiveChannel() domain.SubjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Messages returns a copy of the loaded window.
func (s *MessageWindowService) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Messages()
}

// SwitchChannel makes channelID the active view: any in-flight fetch
// for the previous channel is cancelled, the window is cleared, and the
// newest page of the new channel is loaded.
func (s *MessageWindowService) SwitchChannel(ctx context.Context, channelID domain.SubjectID) int {
	s.mu.Lock()
	s.viewCancel()
	viewCtx, cancel := context.WithCancel(context.Background())
	s.viewCtx, s.viewCancel = viewCtx, cancel
	s.viewGen++
	s.channelID = channelID
	s.lastRead = time.Time{}
	s.window.Clear()
	s.mu.Unlock()

	s.notify()
	return s.LoadOlderMessages(ctx, nil)
}

// Close cancels the view's background work.
func (s *MessageWindowService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewCancel()
}

// CheckoutTimestamp positions the window around a reference timestamp.
// If the reference already falls strictly inside the loaded range this
// is a no-op. Otherwise one page on each side of the reference is
// fetched concurrently and merged; the eviction direction keeps the
// side of the window the reference lies on.
func (s *MessageWindowService) CheckoutTimestamp(ctx context.Context, reference time.Time) {
	s.mu.Lock()
	if s.window.Covers(reference) {
		s.mu.Unlock()
		return
	}
	channelID := s.channelID
	viewCtx := s.viewCtx
	s.mu.Unlock()
	if channelID.IsZero() {
		return
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	// A concurrent checkout may have satisfied the reference while we
	// waited for the fetch slot.
	s.mu.Lock()
	if s.window.Covers(reference) {
		s.mu.Unlock()
		return
	}
	gen := s.viewGen
	viewCtx = s.viewCtx
	newest, hasNewest := s.window.NewestAt()
	s.mu.Unlock()

	var older, newer []domain.Message
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		older = s.fetch(viewCtx, channelID, reference, contract.Older)
	}()
	go func() {
		defer wg.Done()
		newer = s.fetch(viewCtx, channelID, reference, contract.Newer)
	}()
	wg.Wait()

	// Keep the end the caller is navigating towards: evict old messages
	// when the reference is at or beyond the newest boundary.
	truncateOlder := !hasNewest || !reference.Before(newest)
	s.integrate(gen, append(older, newer...), truncateOlder, false)
	s.advanceReadHorizon(gen, channelID, newestTimestamp(older, newer))
}

// LoadOlderMessages fetches one page older than the reference (default:
// the oldest loaded message, or now for an empty window) and returns
// the number of newly integrated messages. Zero means either exhausted
// history or a transient store failure; callers stop paginating and may
// retry opportunistically.
func (s *MessageWindowService) LoadOlderMessages(ctx context.Context, reference *time.Time) int {
	s.mu.Lock()
	channelID := s.channelID
	viewCtx := s.viewCtx
	gen := s.viewGen
	ref := time.Now().UTC()
	if reference != nil {
		ref = *reference
	} else if oldest, ok := s.window.OldestAt(); ok {
		ref = oldest
	}
	s.mu.Unlock()
	if channelID.IsZero() {
		return 0
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	page := s.fetch(viewCtx, channelID, ref, contract.Older)
	added := s.integrate(gen, page, false, false)
	s.advanceReadHorizon(gen, channelID, newestTimestamp(page))
	return added
}

// LoadNewerMessages is the forward counterpart of LoadOlderMessages.
func (s *MessageWindowService) LoadNewerMessages(ctx context.Context, reference *time.Time) int {
	s.mu.Lock()
	channelID := s.channelID
	viewCtx := s.viewCtx
	gen := s.viewGen
	ref := time.Now().UTC()
	if reference != nil {
		ref = *reference
	} else if newest, ok := s.window.NewestAt(); ok {
		ref = newest
	}
	s.mu.Unlock()
	if channelID.IsZero() {
		return 0
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	page := s.fetch(viewCtx, channelID, ref, contract.Newer)
	added := s.integrate(gen, page, true, false)
	s.advanceReadHorizon(gen, channelID, newestTimestamp(page))
	return added
}

// IntegrateMessages merges externally delivered messages (broadcast
// fan-in) into the window. Returns the number of newly added messages.
func (s *MessageWindowService) IntegrateMessages(batch []domain.Message, truncateOlder, replaceExisting bool) int {
	s.mu.Lock()
	gen := s.viewGen
	s.mu.Unlock()
	return s.integrate(gen, batch, truncateOlder, replaceExisting)
}

// ApplyIncoming handles a message.incoming broadcast for the active
// channel: newest-side integration, evicting the oldest on overflow.
func (s *MessageWindowService) ApplyIncoming(msg domain.Message) {
	gen, active := s.matchView(msg.ChannelID)
	if !active {
		return
	}
	s.integrate(gen, []domain.Message{msg}, true, false)
	s.advanceReadHorizon(gen, msg.ChannelID, msg.CreatedAt)
}

// ApplyUpdate handles a message.updated broadcast: in-place overwrite
// of an already loaded message.
func (s *MessageWindowService) ApplyUpdate(msg domain.Message) {
	gen, active := s.matchView(msg.ChannelID)
	if !active {
		return
	}
	if s.integrate(gen, []domain.Message{msg}, true, true) == 0 {
		// An in-place overwrite adds nothing but still changes the view.
		s.notify()
	}
}

// ApplyDeleted handles a message.deleted broadcast.
func (s *MessageWindowService) ApplyDeleted(deleted event.MessageDeleted) {
	s.mu.Lock()
	if deleted.ChannelID != s.channelID {
		s.mu.Unlock()
		return
	}
	removed := s.window.Remove(deleted.MessageID)
	s.mu.Unlock()
	if removed {
		s.notify()
	}
}

// matchView reports whether channelID is the active view and returns
// the current generation, read under the same lock so the pair is
// consistent.
func (s *MessageWindowService) matchView(channelID domain.SubjectID) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewGen, channelID == s.channelID
}

// HighlightMessage reveals one specific message. If its channel is not
// the active view the view switches first (clearing and reloading), and
// the checkout is awaited before the caller reveals it.
func (s *MessageWindowService) HighlightMessage(ctx context.Context, msg domain.Message) {
	if msg.ChannelID != s.ActiveChannel() {
		s.SwitchChannel(ctx, msg.ChannelID)
	}
	s.CheckoutTimestamp(ctx, msg.CreatedAt)
}

// fetch queries one page. Transient store failures degrade to an empty
// page: a delayed update, never a visible error.
func (s *MessageWindowService) fetch(ctx context.Context, channelID domain.SubjectID, ref time.Time, direction contract.Direction) []domain.Message {
	page, err := s.store.QueryMessages(ctx, channelID, ref, direction, s.pageSize)
	if err != nil {
		s.log.Warn("Message page fetch failed", "channel", channelID, "direction", direction, "err", err)
		return nil
	}
	return page
}

// integrate merges a batch issued under generation gen. The view may
// have switched while the fetch was in flight (the store can return a
// page even after its context was cancelled); a stale batch is dropped.
func (s *MessageWindowService) integrate(gen uint64, batch []domain.Message, truncateOlder, replaceExisting bool) int {
	if len(batch) == 0 {
		return 0
	}
	s.mu.Lock()
	if gen != s.viewGen {
		s.mu.Unlock()
		return 0
	}
	added, evicted := s.window.Integrate(batch, truncateOlder, replaceExisting)
	s.mu.Unlock()

	if added > 0 || evicted > 0 {
		s.notify()
	}
	return added
}

// advanceReadHorizon issues an asynchronous best-effort horizon update
// when a fetched page reaches past the participation's last-read
// timestamp. A failure is logged and forgotten: this is a freshness
// optimization, not a correctness requirement.
func (s *MessageWindowService) advanceReadHorizon(gen uint64, channelID domain.SubjectID, pageNewest time.Time) {
	if pageNewest.IsZero() || s.userID.IsZero() {
		return
	}
	s.mu.Lock()
	stale := gen == s.viewGen && pageNewest.After(s.lastRead)
	viewCtx := s.viewCtx
	s.mu.Unlock()
	if !stale {
		return
	}

	go func() {
		if _, err := s.store.UpdateReadHorizon(viewCtx, channelID, s.userID, pageNewest); err != nil {
			s.log.Debug("Read horizon update failed", "channel", channelID, "err", err)
			return
		}
		s.mu.Lock()
		if gen == s.viewGen && pageNewest.After(s.lastRead) {
			s.lastRead = pageNewest
		}
		s.mu.Unlock()
	}()
}

func (s *MessageWindowService) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func newestTimestamp(batches ...[]domain.Message) time.Time {
	var newest time.Time
	for _, batch := range batches {
		for _, msg := range batch {
			if msg.CreatedAt.After(newest) {
				newest = msg.CreatedAt
			}
		}
	}
	return newest
}
