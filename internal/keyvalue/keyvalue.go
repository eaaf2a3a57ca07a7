// Package keyvalue implements the wasmcloud:keyvalue capability on top of a
// kvstore backend.
package keyvalue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gezibash/wasmbus/internal/kvstore"
	"github.com/gezibash/wasmbus/internal/observability"
	"github.com/gezibash/wasmbus/pkg/provider"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// ContractID is the capability contract served by this package.
const ContractID = "wasmcloud:keyvalue"

// Operation names.
const (
	OpAdd             = "Add"
	OpGet             = "Get"
	OpSet             = "Set"
	OpDel             = "Del"
	OpClear           = "Clear"
	OpRange           = "Range"
	OpPush            = "Push"
	OpListItemDelete  = "ListItemDelete"
	OpSetAdd          = "SetAdd"
	OpSetRemove       = "SetRemove"
	OpSetUnion        = "SetUnion"
	OpSetIntersection = "SetIntersection"
	OpSetQuery        = "SetQuery"
	OpKeyExists       = "KeyExists"
)

// MutatingOperations are the operations that change stored data.
var MutatingOperations = []string{
	OpAdd, OpSet, OpDel, OpClear, OpPush, OpListItemDelete, OpSetAdd, OpSetRemove,
}

// LinkValueURL is the link value naming the backing store. Lookup ignores case.
const LinkValueURL = "URL"

// DefaultURL is used when a link carries no URL value.
const DefaultURL = "redis://0.0.0.0:6379/"

// Register binds every key-value operation onto d.
func Register(d *provider.Dispatcher[kvstore.Store]) {
	provider.Handle(d, OpAdd, add)
	provider.Handle(d, OpGet, get)
	provider.Handle(d, OpSet, set)
	provider.Handle(d, OpDel, func(ctx context.Context, s kvstore.Store, args DelArgs) (DelResponse, error) {
		return del(ctx, s, args.Key)
	})
	provider.Handle(d, OpClear, func(ctx context.Context, s kvstore.Store, args ClearArgs) (DelResponse, error) {
		return del(ctx, s, args.Key)
	})
	provider.Handle(d, OpRange, listRange)
	provider.Handle(d, OpPush, push)
	provider.Handle(d, OpListItemDelete, listItemDelete)
	provider.Handle(d, OpSetAdd, setAdd)
	provider.Handle(d, OpSetRemove, setRemove)
	provider.Handle(d, OpSetUnion, setUnion)
	provider.Handle(d, OpSetIntersection, setIntersection)
	provider.Handle(d, OpSetQuery, setQuery)
	provider.Handle(d, OpKeyExists, keyExists)
}

// Opener returns a provider.Opener that connects each linked actor to the
// store named by its URL link value. metrics may be nil.
func Opener(metrics *observability.Metrics) provider.Opener[kvstore.Store] {
	return OpenerWithDefault(DefaultURL, metrics)
}

// OpenerWithDefault is Opener with a different store for links that carry
// no URL value.
func OpenerWithDefault(defaultURL string, metrics *observability.Metrics) provider.Opener[kvstore.Store] {
	if defaultURL == "" {
		defaultURL = DefaultURL
	}
	return func(ctx context.Context, ld wasmbus.LinkDefinition) (kvstore.Store, error) {
		rawURL, ok := ld.Value(LinkValueURL)
		if !ok || rawURL == "" {
			rawURL = defaultURL
		}
		return kvstore.Open(ctx, rawURL, metrics)
	}
}

func int32Of(n int64) (int32, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("value %d out of range for a 32-bit result", n)
	}
	return int32(n), nil
}

func add(ctx context.Context, s kvstore.Store, args AddArgs) (AddResponse, error) {
	n, err := s.Incr(ctx, args.Key, int64(args.Value))
	if err != nil {
		return AddResponse{}, err
	}
	v, err := int32Of(n)
	return AddResponse{Value: v}, err
}

// get reports a key holding a list or set as absent rather than failing.
func get(ctx context.Context, s kvstore.Store, args GetArgs) (GetResponse, error) {
	v, ok, err := s.Get(ctx, args.Key)
	if errors.Is(err, kvstore.ErrWrongType) {
		return GetResponse{}, nil
	}
	if err != nil {
		return GetResponse{}, err
	}
	return GetResponse{Value: v, Exists: ok}, nil
}

func set(ctx context.Context, s kvstore.Store, args SetArgs) (SetResponse, error) {
	ttl := time.Duration(args.Expires) * time.Second
	if err := s.Set(ctx, args.Key, args.Value, ttl); err != nil {
		return SetResponse{}, err
	}
	return SetResponse{Value: args.Value}, nil
}

func del(ctx context.Context, s kvstore.Store, key string) (DelResponse, error) {
	if _, err := s.Del(ctx, key); err != nil {
		return DelResponse{}, err
	}
	return DelResponse{Key: key}, nil
}

func listRange(ctx context.Context, s kvstore.Store, args RangeArgs) (ListRangeResponse, error) {
	values, err := s.ListRange(ctx, args.Key, int64(args.Start), int64(args.Stop))
	return ListRangeResponse{Values: values}, err
}

func push(ctx context.Context, s kvstore.Store, args PushArgs) (ListResponse, error) {
	n, err := s.ListPush(ctx, args.Key, args.Value)
	if err != nil {
		return ListResponse{}, err
	}
	v, err := int32Of(n)
	return ListResponse{NewCount: v}, err
}

func listItemDelete(ctx context.Context, s kvstore.Store, args ListItemDeleteArgs) (ListResponse, error) {
	n, err := s.ListRemove(ctx, args.Key, args.Value)
	if err != nil {
		return ListResponse{}, err
	}
	v, err := int32Of(n)
	return ListResponse{NewCount: v}, err
}

func setAdd(ctx context.Context, s kvstore.Store, args SetAddArgs) (SetOperationResponse, error) {
	n, err := s.SetAdd(ctx, args.Key, args.Value)
	return SetOperationResponse{NewCount: int32(n)}, err
}

func setRemove(ctx context.Context, s kvstore.Store, args SetRemoveArgs) (SetOperationResponse, error) {
	n, err := s.SetRemove(ctx, args.Key, args.Value)
	return SetOperationResponse{NewCount: int32(n)}, err
}

func setUnion(ctx context.Context, s kvstore.Store, args SetUnionArgs) (SetQueryResponse, error) {
	values, err := s.SetUnion(ctx, args.Keys...)
	return SetQueryResponse{Values: values}, err
}

func setIntersection(ctx context.Context, s kvstore.Store, args SetIntersectionArgs) (SetQueryResponse, error) {
	values, err := s.SetIntersect(ctx, args.Keys...)
	return SetQueryResponse{Values: values}, err
}

func setQuery(ctx context.Context, s kvstore.Store, args SetQueryArgs) (SetQueryResponse, error) {
	values, err := s.SetMembers(ctx, args.Key)
	return SetQueryResponse{Values: values}, err
}

func keyExists(ctx context.Context, s kvstore.Store, args KeyExistsArgs) (GetResponse, error) {
	ok, err := s.Exists(ctx, args.Key)
	return GetResponse{Exists: ok}, err
}
