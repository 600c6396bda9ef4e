package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/models"
	"groupswipe/utils"
)

// fakeDynamo records the last request of each kind and returns canned errors.
type fakeDynamo struct {
	update   *dynamodb.UpdateItemInput
	put      *dynamodb.PutItemInput
	query    []*dynamodb.QueryInput
	transact *dynamodb.TransactWriteItemsInput

	pages [][]Item
	err   error

	// transactErrs are returned by successive TransactWriteItems calls
	// before falling back to err.
	transactErrs  []error
	transactCalls int
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, f.err
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.put = in
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.update = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.UpdateItemOutput{Attributes: Item{"ok": utils.StringAttr("yes")}}, nil
}

func (f *fakeDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, f.err
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transact = in
	f.transactCalls++
	if len(f.transactErrs) > 0 {
		err := f.transactErrs[0]
		f.transactErrs = f.transactErrs[1:]
		return &dynamodb.TransactWriteItemsOutput{}, err
	}
	return &dynamodb.TransactWriteItemsOutput{}, f.err
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.query = append(f.query, in)
	page := len(f.query) - 1
	out := &dynamodb.QueryOutput{}
	if page < len(f.pages) {
		out.Items = f.pages[page]
	}
	if page < len(f.pages)-1 {
		out.LastEvaluatedKey = Item{AttrPK: utils.StringAttr("next")}
	}
	return out, nil
}

func TestDynamoUpdateExpression(t *testing.T) {
	fake := &fakeDynamo{}
	ds := &DynamoService{Client: fake, Table: "GroupSwipe"}

	_, err := ds.UpdateItem(context.Background(), Key{PK: "ROOM#r", SK: "MEMBER#u"}, Update{
		Set:       map[string]types.AttributeValue{"status": utils.StringAttr("ACTIVE")},
		Add:       map[string]int64{"likesCount": 1},
		Condition: CondExists,
		Expect:    map[string]types.AttributeValue{"currentIndex": utils.NumberAttr(3)},
	})
	if err != nil {
		t.Fatal(err)
	}

	in := fake.update
	if got := aws.ToString(in.UpdateExpression); got != "SET #n0 = :v0 ADD #n1 :v1" {
		t.Errorf("update expression = %q", got)
	}
	if got := aws.ToString(in.ConditionExpression); got != "attribute_exists(#n2) AND #n3 = :v2" {
		t.Errorf("condition expression = %q", got)
	}
	wantNames := map[string]string{"#n0": "status", "#n1": "likesCount", "#n2": "PK", "#n3": "currentIndex"}
	for k, v := range wantNames {
		if in.ExpressionAttributeNames[k] != v {
			t.Errorf("name %s = %q, want %q", k, in.ExpressionAttributeNames[k], v)
		}
	}
	if in.ReturnValues != types.ReturnValueAllNew {
		t.Errorf("return values = %v", in.ReturnValues)
	}
}

func TestDynamoUpdateRequiresChanges(t *testing.T) {
	ds := &DynamoService{Client: &fakeDynamo{}, Table: "t"}
	_, err := ds.UpdateItem(context.Background(), Key{PK: "p", SK: "s"}, Update{Condition: CondExists})
	assertErrorIs(t, err, ErrInvalidInput)
}

func TestDynamoConditionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "conditional check",
			err:  &types.ConditionalCheckFailedException{Message: aws.String("nope")},
			want: ErrConditionFailed,
		},
		{
			name: "transaction canceled by condition",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			}},
			want: ErrConditionFailed,
		},
		{
			name: "transaction canceled by conflict",
			err:  conflictCancellation(),
			want: ErrTransactionConflict,
		},
		{
			name: "condition wins over conflict",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: aws.String("TransactionConflict")},
				{Code: aws.String("ConditionalCheckFailed")},
			}},
			want: ErrConditionFailed,
		},
		{
			name: "transaction conflict exception",
			err:  &types.TransactionConflictException{Message: aws.String("busy")},
			want: ErrTransactionConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &DynamoService{Client: &fakeDynamo{err: tt.err}, Table: "t"}
			err := ds.TransactWrite(context.Background(), []WriteOp{DeleteOp(Key{PK: "p", SK: "s"}, CondExists)})
			assertErrorIs(t, err, tt.want)
		})
	}

	other := errors.New("throttled")
	ds := &DynamoService{Client: &fakeDynamo{err: other}, Table: "t"}
	err := ds.PutItem(context.Background(), Key{PK: "p", SK: "s"}.attributes(), CondNotExists)
	if errors.Is(err, ErrConditionFailed) || !errors.Is(err, other) {
		t.Fatalf("err = %v, want wrapped throttled", err)
	}
}

func TestDynamoPutCondition(t *testing.T) {
	fake := &fakeDynamo{}
	ds := &DynamoService{Client: fake, Table: "t"}
	if err := ds.PutItem(context.Background(), Key{PK: "p", SK: "s"}.attributes(), CondNotExists); err != nil {
		t.Fatal(err)
	}
	if got := aws.ToString(fake.put.ConditionExpression); got != "attribute_not_exists(#n0)" {
		t.Errorf("condition = %q", got)
	}

	if err := ds.PutItem(context.Background(), Key{PK: "p", SK: "s"}.attributes(), CondNone); err != nil {
		t.Fatal(err)
	}
	if fake.put.ConditionExpression != nil || fake.put.ExpressionAttributeNames != nil {
		t.Errorf("unconditional put carried a condition: %+v", fake.put)
	}
}

func TestDynamoQueryPaginates(t *testing.T) {
	fake := &fakeDynamo{pages: [][]Item{
		{Key{PK: "ROOM#r", SK: "MEMBER#a"}.attributes()},
		{Key{PK: "ROOM#r", SK: "MEMBER#b"}.attributes()},
	}}
	ds := &DynamoService{Client: fake, Table: "t"}

	items, err := ds.QueryItems(context.Background(), Query{PK: "ROOM#r", SKPrefix: "MEMBER#", Descending: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || len(fake.query) != 2 {
		t.Fatalf("items = %d over %d calls, want 2 over 2", len(items), len(fake.query))
	}
	in := fake.query[0]
	if !strings.Contains(aws.ToString(in.KeyConditionExpression), "begins_with(") {
		t.Errorf("key condition = %q", aws.ToString(in.KeyConditionExpression))
	}
	if aws.ToBool(in.ScanIndexForward) {
		t.Error("descending query scans forward")
	}
}

func TestDynamoTransactBuildsEveryKind(t *testing.T) {
	fake := &fakeDynamo{}
	ds := &DynamoService{Client: fake, Table: "t"}
	err := ds.TransactWrite(context.Background(), []WriteOp{
		PutOp(Key{PK: "p", SK: "vote"}.attributes(), CondNotExists),
		UpdateOp(Key{PK: "p", SK: "tally"}, Update{Add: map[string]int64{"likesCount": 1}}),
		DeleteOp(Key{PK: "p", SK: "old"}, CondNone),
	})
	if err != nil {
		t.Fatal(err)
	}
	items := fake.transact.TransactItems
	if len(items) != 3 || items[0].Put == nil || items[1].Update == nil || items[2].Delete == nil {
		t.Fatalf("transact items = %+v", items)
	}
	if aws.ToString(items[1].Update.UpdateExpression) != "ADD #n0 :v0" {
		t.Errorf("update = %q", aws.ToString(items[1].Update.UpdateExpression))
	}
	if items[2].Delete.ConditionExpression != nil {
		t.Error("unconditional delete carried a condition")
	}
}

func conflictCancellation() error {
	return &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
		{Code: aws.String("None")},
		{Code: aws.String("TransactionConflict")},
	}}
}

func TestRecordVoteRetriesTallyConflicts(t *testing.T) {
	fake := &fakeDynamo{transactErrs: []error{conflictCancellation(), conflictCancellation()}}
	vl := &VoteLedger{Store: &DynamoService{Client: fake, Table: "t"}}

	accepted, err := vl.RecordVote(context.Background(), "r1", "alice", "m1", models.VoteLike)
	if err != nil || !accepted {
		t.Fatalf("RecordVote = %v, %v; want accepted", accepted, err)
	}
	if fake.transactCalls != 3 {
		t.Fatalf("transaction calls = %d, want 3", fake.transactCalls)
	}
	if got := len(fake.transact.TransactItems); got != 3 {
		t.Fatalf("transaction items = %d, want member guard, vote and tally", got)
	}
	if guard := fake.transact.TransactItems[0].Update; guard == nil || aws.ToString(guard.ConditionExpression) != "attribute_exists(#n2)" {
		t.Fatalf("first item is not a guarded member update: %+v", fake.transact.TransactItems[0])
	}
}

func TestRecordVoteGivesUpOnPersistentConflict(t *testing.T) {
	fake := &fakeDynamo{err: conflictCancellation()}
	vl := &VoteLedger{Store: &DynamoService{Client: fake, Table: "t"}}

	accepted, err := vl.RecordVote(context.Background(), "r1", "alice", "m1", models.VoteLike)
	if accepted {
		t.Fatal("vote accepted")
	}
	assertErrorIs(t, err, ErrTransactionConflict)
	if fake.transactCalls != voteAttempts {
		t.Fatalf("transaction calls = %d, want %d", fake.transactCalls, voteAttempts)
	}
}
