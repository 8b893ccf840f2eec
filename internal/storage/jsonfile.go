package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"bili_bot/internal/model"
)

// subListKey is the top-level key of the subscription map. It matches the
// data file of the chat plugin this bot replaces, so that file loads as is.
const subListKey = "bili_sub_list"

type jsonDocument struct {
	Subscriptions map[string][]model.Subscription `json:"bili_sub_list"`
}

// JSONFile implements Storage as a single JSON document on disk. Every
// mutation rewrites the whole document through a temp file and a rename, so
// a failed write leaves the previous file intact.
type JSONFile struct {
	path string

	mu  sync.Mutex
	doc jsonDocument
}

// NewJSONFile loads the document at path, starting empty if it does not exist.
func NewJSONFile(path string) (*JSONFile, error) {
	s := &JSONFile{path: path, doc: jsonDocument{Subscriptions: map[string][]model.Subscription{}}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}
	raw, ok := top[subListKey]
	if !ok && len(top) > 0 {
		return nil, fmt.Errorf("decode data file: no %q key in %s", subListKey, path)
	}
	if ok {
		if err := json.Unmarshal(raw, &s.doc.Subscriptions); err != nil {
			return nil, fmt.Errorf("decode %s: %w", subListKey, err)
		}
	}
	if s.doc.Subscriptions == nil {
		s.doc.Subscriptions = map[string][]model.Subscription{}
	}
	for sid, subs := range s.doc.Subscriptions {
		for i := range subs {
			subs[i].SubscriberID = sid
		}
	}
	return s, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONFile) Close() error { return nil }

// Get returns the subscription stored under key.
func (s *JSONFile) Get(_ context.Context, key model.Key) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(key)
	if i < 0 {
		return nil, ErrNotFound
	}
	sub := cloneSubscription(s.doc.Subscriptions[key.SubscriberID][i])
	return &sub, nil
}

// List returns the subscriptions of one subscriber in insertion order.
func (s *JSONFile) List(_ context.Context, subscriberID string) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneList(s.doc.Subscriptions[subscriberID]), nil
}

// ListAll returns every subscription, grouped by subscriber id.
func (s *JSONFile) ListAll(_ context.Context) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []model.Subscription
	for _, sid := range s.subscribers() {
		all = append(all, cloneList(s.doc.Subscriptions[sid])...)
	}
	return all, nil
}

// ListSubscribers returns the subscriber ids in sorted order.
func (s *JSONFile) ListSubscribers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribers(), nil
}

// Put inserts a subscription or replaces the existing one for the same key.
func (s *JSONFile) Put(_ context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	next := s.cloneDoc()
	list := next.Subscriptions[sub.SubscriberID]
	rec := cloneSubscription(*sub)
	if i := indexIn(list, sub.Key()); i >= 0 {
		rec.CreatedAt = list[i].CreatedAt
		list[i] = rec
	} else {
		list = append(list, rec)
	}
	next.Subscriptions[sub.SubscriberID] = list
	return s.commit(next)
}

// Update applies fn to the stored record and rewrites the document.
func (s *JSONFile) Update(_ context.Context, key model.Key, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneDoc()
	list := next.Subscriptions[key.SubscriberID]
	i := indexIn(list, key)
	if i < 0 {
		return ErrNotFound
	}
	sub := list[i]
	if err := fn(&sub); err != nil {
		return err
	}
	sub.SubscriberID, sub.CreatorID = key.SubscriberID, key.CreatorID
	list[i] = sub
	return s.commit(next)
}

// Delete removes one subscription.
func (s *JSONFile) Delete(_ context.Context, key model.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneDoc()
	list := next.Subscriptions[key.SubscriberID]
	i := indexIn(list, key)
	if i < 0 {
		return ErrNotFound
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(next.Subscriptions, key.SubscriberID)
	} else {
		next.Subscriptions[key.SubscriberID] = list
	}
	return s.commit(next)
}

// DeleteSubscriber removes all subscriptions of a subscriber.
func (s *JSONFile) DeleteSubscriber(_ context.Context, subscriberID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.doc.Subscriptions[subscriberID])
	if n == 0 {
		return 0, nil
	}
	next := s.cloneDoc()
	delete(next.Subscriptions, subscriberID)
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return n, nil
}

// commit writes next to disk and makes it the live document. The caller
// holds s.mu.
func (s *JSONFile) commit(next jsonDocument) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.doc = next
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

func (s *JSONFile) indexOf(key model.Key) int {
	return indexIn(s.doc.Subscriptions[key.SubscriberID], key)
}

func (s *JSONFile) subscribers() []string {
	ids := make([]string, 0, len(s.doc.Subscriptions))
	for sid, subs := range s.doc.Subscriptions {
		if len(subs) > 0 {
			ids = append(ids, sid)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *JSONFile) cloneDoc() jsonDocument {
	next := jsonDocument{Subscriptions: make(map[string][]model.Subscription, len(s.doc.Subscriptions))}
	for sid, subs := range s.doc.Subscriptions {
		next.Subscriptions[sid] = cloneList(subs)
	}
	return next
}

func indexIn(list []model.Subscription, key model.Key) int {
	return slices.IndexFunc(list, func(sub model.Subscription) bool {
		return sub.CreatorID == key.CreatorID
	})
}

func cloneList(subs []model.Subscription) []model.Subscription {
	if len(subs) == 0 {
		return nil
	}
	out := make([]model.Subscription, len(subs))
	for i, sub := range subs {
		out[i] = cloneSubscription(sub)
	}
	return out
}

func cloneSubscription(sub model.Subscription) model.Subscription {
	sub.FilterTypes = slices.Clone(sub.FilterTypes)
	sub.FilterPatterns = slices.Clone(sub.FilterPatterns)
	return sub
}
