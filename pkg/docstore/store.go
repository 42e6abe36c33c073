// Package docstore is the document / ordered log store the chat core talks to.
//
// Paths alternate collection and document ids ("chatRooms/{room}/messages/{id}").
// Live queries redeliver the full current result set whenever a write touches
// the collection they watch, until the returned Subscription is stopped.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound document 不存在
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidPath path 段數不符合 collection / document
	ErrInvalidPath = errors.New("docstore: invalid path")
	// ErrClosed store 已關閉
	ErrClosed = errors.New("docstore: store closed")
)

// Document one stored document
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// Subscription handle of a live query
type Subscription interface {
	// Stop 之後不會再開始新的 delivery, 已在執行中的 delivery 可能仍會完成
	Stop()
}

// Store document / log store operations used by the chat core
type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Update(ctx context.Context, path string, data map[string]any) error
	Listen(ctx context.Context, q Query, fn func([]Document, error)) (Subscription, error)
	ListenDocument(ctx context.Context, path string, fn func(*Document, error)) (Subscription, error)
	Close() error
}

type setOptions struct {
	merge bool
}

// SetOption option of Store.Set
type SetOption func(*setOptions)

// Merge 只覆寫 data 內的欄位, 其餘欄位保留
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type serverTimestamp struct{}

// ServerTimestamp field value resolved by the store at write acceptance
var ServerTimestamp any = serverTimestamp{}

type arrayUnion struct {
	values []any
}

// ArrayUnion field value that adds the values missing from the stored array
func ArrayUnion(values ...any) any {
	return arrayUnion{values: values}
}

// splitDocPath "a/b/c/d" -> ("a/b/c", "d")
func splitDocPath(path string) (string, string, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || len(segs)%2 != 0 || hasEmpty(segs) {
		return "", "", fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// splitCollectionPath "a/b/c" -> ("a/b", "c")
func splitCollectionPath(path string) (string, string, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs)%2 != 1 || hasEmpty(segs) {
		return "", "", fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

func hasEmpty(segs []string) bool {
	for _, s := range segs {
		if s == "" {
			return true
		}
	}
	return false
}

// String field as string, "" when missing or of another type
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Bool field as bool
func (d Document) Bool(field string) bool {
	b, _ := d.Data[field].(bool)
	return b
}

// Time field as time, zero when missing or unresolved
func (d Document) Time(field string) time.Time {
	t, _ := d.Data[field].(time.Time)
	return t
}

// Strings field as []string, non string elements are skipped
func (d Document) Strings(field string) []string {
	switch v := d.Data[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
