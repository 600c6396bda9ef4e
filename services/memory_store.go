package services

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/utils"
)

// MemoryStore is an in-process Store for development and tests.
// A single mutex makes every call, including TransactWrite, atomic.
type MemoryStore struct {
	mu         sync.Mutex
	partitions map[string]map[string]Item // PK -> SK -> item
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string]Item)}
}

func (s *MemoryStore) GetItem(ctx context.Context, key Key) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) PutItem(ctx context.Context, item Item, cond Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := keyOf(item)
	if key.PK == "" || key.SK == "" {
		return fmt.Errorf("put item: %w: missing key attributes", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(key, cond, nil); err != nil {
		return err
	}
	s.store(key, cloneItem(item))
	return nil
}

func (s *MemoryStore) UpdateItem(ctx context.Context, key Key, upd Update) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(key, upd.Condition, upd.Expect); err != nil {
		return nil, err
	}
	next := s.apply(key, upd)
	return cloneItem(next), nil
}

func (s *MemoryStore) QueryItems(ctx context.Context, q Query) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.partitions[q.PK]
	sks := make([]string, 0, len(part))
	for sk := range part {
		if strings.HasPrefix(sk, q.SKPrefix) {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)
	if q.Descending {
		for i, j := 0, len(sks)-1; i < j; i, j = i+1, j-1 {
			sks[i], sks[j] = sks[j], sks[i]
		}
	}
	if q.Limit > 0 && len(sks) > int(q.Limit) {
		sks = sks[:q.Limit]
	}

	out := make([]Item, 0, len(sks))
	for _, sk := range sks {
		out = append(out, cloneItem(part[sk]))
	}
	return out, nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, key Key, cond Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(key, cond, nil); err != nil {
		return err
	}
	s.remove(key)
	return nil
}

// TransactWrite checks every precondition against the current state before
// applying any operation, so a failed condition leaves the store untouched.
func (s *MemoryStore) TransactWrite(ctx context.Context, ops []WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxTransactItems {
		return fmt.Errorf("transact write: %w: %d operations exceeds %d", ErrInvalidInput, len(ops), MaxTransactItems)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[Key]struct{}, len(ops))
	for _, op := range ops {
		if _, dup := seen[op.key]; dup {
			return fmt.Errorf("transact write: %w: multiple operations on %s/%s", ErrInvalidInput, op.key.PK, op.key.SK)
		}
		seen[op.key] = struct{}{}

		var expect map[string]types.AttributeValue
		if op.kind == writeUpdate {
			expect = op.update.Expect
		}
		if err := s.check(op.key, op.condition, expect); err != nil {
			return err
		}
	}

	for _, op := range ops {
		switch op.kind {
		case writePut:
			s.store(op.key, cloneItem(op.item))
		case writeUpdate:
			s.apply(op.key, op.update)
		case writeDelete:
			s.remove(op.key)
		}
	}
	return nil
}

func (s *MemoryStore) lookup(key Key) (Item, bool) {
	item, ok := s.partitions[key.PK][key.SK]
	return item, ok
}

func (s *MemoryStore) store(key Key, item Item) {
	part := s.partitions[key.PK]
	if part == nil {
		part = make(map[string]Item)
		s.partitions[key.PK] = part
	}
	part[key.SK] = item
}

func (s *MemoryStore) remove(key Key) {
	part := s.partitions[key.PK]
	delete(part, key.SK)
	if len(part) == 0 {
		delete(s.partitions, key.PK)
	}
}

func (s *MemoryStore) check(key Key, cond Condition, expect map[string]types.AttributeValue) error {
	item, exists := s.lookup(key)
	switch {
	case cond == CondExists && !exists:
		return ErrConditionFailed
	case cond == CondNotExists && exists:
		return ErrConditionFailed
	}
	for name, want := range expect {
		if !exists || !attributeEqual(item[name], want) {
			return ErrConditionFailed
		}
	}
	return nil
}

func (s *MemoryStore) apply(key Key, upd Update) Item {
	item, ok := s.lookup(key)
	if ok {
		item = cloneItem(item)
	} else {
		item = key.attributes()
	}
	for name, v := range upd.Set {
		item[name] = v
	}
	for name, delta := range upd.Add {
		item[name] = utils.NumberAttr(utils.ExtractInt(item, name) + delta)
	}
	s.store(key, item)
	return item
}

func cloneItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func attributeEqual(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return reflect.DeepEqual(a, b)
}
