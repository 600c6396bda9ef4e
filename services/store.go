package services

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/utils"
)

var (
	// ErrNotFound is returned when a room, member, match or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConditionFailed is returned when a store precondition does not hold.
	ErrConditionFailed = errors.New("condition failed")
	// ErrDuplicateVote is returned when the member already voted on the item.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrInvalidInput is returned for malformed identifiers or arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists is returned when creating a room that already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrTransactionConflict is returned when a transaction lost a race with
	// another write to one of its records. Retrying may succeed.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// Attribute names of the table keys.
const (
	AttrPK = "PK"
	AttrSK = "SK"
)

// Item is a raw table record.
type Item = map[string]types.AttributeValue

// Key addresses one record.
type Key struct {
	PK string
	SK string
}

func (k Key) attributes() Item {
	return Item{
		AttrPK: &types.AttributeValueMemberS{Value: k.PK},
		AttrSK: &types.AttributeValueMemberS{Value: k.SK},
	}
}

func keyOf(item Item) Key {
	return Key{PK: utils.ExtractString(item, AttrPK), SK: utils.ExtractString(item, AttrSK)}
}

// Condition is an existence precondition on the addressed record.
type Condition int

const (
	CondNone Condition = iota
	CondExists
	CondNotExists
)

// Update describes a partial modification. Set overwrites attributes, Add
// increments numeric attributes (missing ones count as zero). Expect lists
// attribute values that must currently hold for the update to apply.
type Update struct {
	Set       map[string]types.AttributeValue
	Add       map[string]int64
	Condition Condition
	Expect    map[string]types.AttributeValue
}

// Query selects records of one partition, optionally by sort key prefix.
type Query struct {
	PK         string
	SKPrefix   string
	Limit      int32 // 0 returns every match
	Descending bool
}

type writeKind int

const (
	writePut writeKind = iota
	writeUpdate
	writeDelete
)

// WriteOp is one element of a transactional write.
type WriteOp struct {
	kind      writeKind
	key       Key
	item      Item
	update    Update
	condition Condition
}

func PutOp(item Item, cond Condition) WriteOp {
	return WriteOp{kind: writePut, key: keyOf(item), item: item, condition: cond}
}

func UpdateOp(key Key, upd Update) WriteOp {
	return WriteOp{kind: writeUpdate, key: key, update: upd, condition: upd.Condition}
}

func DeleteOp(key Key, cond Condition) WriteOp {
	return WriteOp{kind: writeDelete, key: key, condition: cond}
}

// MaxTransactItems bounds the number of operations in one TransactWrite.
const MaxTransactItems = 100

// Store is the key-value persistence the engine runs on. Each call is atomic
// for the records it addresses; TransactWrite is atomic across its operations.
type Store interface {
	GetItem(ctx context.Context, key Key) (Item, error)
	PutItem(ctx context.Context, item Item, cond Condition) error
	// UpdateItem creates the record when it is missing and no condition forbids it.
	// It returns the record as stored after the update.
	UpdateItem(ctx context.Context, key Key, upd Update) (Item, error)
	QueryItems(ctx context.Context, q Query) ([]Item, error)
	DeleteItem(ctx context.Context, key Key, cond Condition) error
	TransactWrite(ctx context.Context, ops []WriteOp) error
}
