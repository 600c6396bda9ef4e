package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/utils"
)

func testItem(pk, sk string, attrs map[string]types.AttributeValue) Item {
	item := Key{PK: pk, SK: sk}.attributes()
	for k, v := range attrs {
		item[k] = v
	}
	return item
}

func TestMemoryStorePutConditions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	item := testItem("P", "S", map[string]types.AttributeValue{"n": utils.NumberAttr(1)})

	if err := s.PutItem(ctx, item, CondNotExists); err != nil {
		t.Fatalf("first put: %v", err)
	}
	assertErrorIs(t, s.PutItem(ctx, item, CondNotExists), ErrConditionFailed)
	assertErrorIs(t, s.PutItem(ctx, testItem("P", "other", nil), CondExists), ErrConditionFailed)

	if _, err := s.GetItem(ctx, Key{PK: "P", SK: "missing"}); err == nil {
		t.Fatal("expected ErrNotFound")
	} else {
		assertErrorIs(t, err, ErrNotFound)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := Key{PK: "P", SK: "counter"}

	// upsert with ADD on a missing record
	got, err := s.UpdateItem(ctx, key, Update{Add: map[string]int64{"hits": 2}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if utils.ExtractInt(got, "hits") != 2 || utils.ExtractString(got, AttrSK) != "counter" {
		t.Fatalf("unexpected item after upsert: %v", got)
	}

	_, err = s.UpdateItem(ctx, key, Update{
		Add:    map[string]int64{"hits": 1},
		Expect: map[string]types.AttributeValue{"hits": utils.NumberAttr(5)},
	})
	assertErrorIs(t, err, ErrConditionFailed)

	got, err = s.UpdateItem(ctx, key, Update{
		Set:    map[string]types.AttributeValue{"label": utils.StringAttr("x")},
		Add:    map[string]int64{"hits": -1},
		Expect: map[string]types.AttributeValue{"hits": utils.NumberAttr(2)},
	})
	if err != nil {
		t.Fatalf("expected update: %v", err)
	}
	if utils.ExtractInt(got, "hits") != 1 || utils.ExtractString(got, "label") != "x" {
		t.Fatalf("unexpected item: %v", got)
	}

	_, err = s.UpdateItem(ctx, Key{PK: "P", SK: "absent"}, Update{Add: map[string]int64{"hits": 1}, Condition: CondExists})
	assertErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, sk := range []string{"VOTE#a#u1", "VOTE#a#u2", "VOTE#b#u1", "MEMBER#u1"} {
		if err := s.PutItem(ctx, testItem("ROOM#r", sk, nil), CondNone); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"prefix", Query{PK: "ROOM#r", SKPrefix: "VOTE#a#"}, []string{"VOTE#a#u1", "VOTE#a#u2"}},
		{"descending", Query{PK: "ROOM#r", SKPrefix: "VOTE#", Descending: true}, []string{"VOTE#b#u1", "VOTE#a#u2", "VOTE#a#u1"}},
		{"limit", Query{PK: "ROOM#r", Limit: 1}, []string{"MEMBER#u1"}},
		{"other partition", Query{PK: "ROOM#x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := s.QueryItems(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.want))
			}
			for i, item := range items {
				if sk := utils.ExtractString(item, AttrSK); sk != tt.want[i] {
					t.Errorf("item %d = %s, want %s", i, sk, tt.want[i])
				}
			}
		})
	}
}

func TestMemoryStoreTransactWriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	existing := testItem("P", "taken", nil)
	if err := s.PutItem(ctx, existing, CondNone); err != nil {
		t.Fatal(err)
	}

	err := s.TransactWrite(ctx, []WriteOp{
		UpdateOp(Key{PK: "P", SK: "tally"}, Update{Add: map[string]int64{"n": 1}}),
		PutOp(existing, CondNotExists),
	})
	assertErrorIs(t, err, ErrConditionFailed)

	if _, err := s.GetItem(ctx, Key{PK: "P", SK: "tally"}); err == nil {
		t.Fatal("failed transaction must not apply its other operations")
	}

	err = s.TransactWrite(ctx, []WriteOp{
		UpdateOp(Key{PK: "P", SK: "tally"}, Update{Add: map[string]int64{"n": 1}}),
		DeleteOp(Key{PK: "P", SK: "taken"}, CondExists),
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, err := s.GetItem(ctx, Key{PK: "P", SK: "taken"}); err == nil {
		t.Fatal("delete not applied")
	}
}

func TestMemoryStoreRejectsRepeatedKeysInTransaction(t *testing.T) {
	s := NewMemoryStore()
	key := Key{PK: "P", SK: "S"}
	err := s.TransactWrite(context.Background(), []WriteOp{
		UpdateOp(key, Update{Add: map[string]int64{"n": 1}}),
		UpdateOp(key, Update{Add: map[string]int64{"n": 1}}),
	})
	assertErrorIs(t, err, ErrInvalidInput)
}
