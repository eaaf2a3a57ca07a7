package keyvalue

// Argument and response types. Field names on the wire are fixed by the
// key-value contract and shared with providers in other languages.

type GetArgs struct {
	Key string `msgpack:"key" json:"key"`
}

type AddArgs struct {
	Key   string `msgpack:"key" json:"key"`
	Value int32  `msgpack:"value" json:"value"`
}

// SetArgs stores Value under Key. Expires is a TTL in seconds; 0 means none.
type SetArgs struct {
	Key     string `msgpack:"key" json:"key"`
	Value   string `msgpack:"value" json:"value"`
	Expires int32  `msgpack:"expires" json:"expires"`
}

type DelArgs struct {
	Key string `msgpack:"key" json:"key"`
}

type ClearArgs struct {
	Key string `msgpack:"key" json:"key"`
}

// RangeArgs selects list elements Start..Stop inclusive; negative indexes
// count from the tail.
type RangeArgs struct {
	Key   string `msgpack:"key" json:"key"`
	Start int32  `msgpack:"start" json:"start"`
	Stop  int32  `msgpack:"stop" json:"stop"`
}

type PushArgs struct {
	Key   string `msgpack:"key" json:"key"`
	Value string `msgpack:"value" json:"value"`
}

type ListItemDeleteArgs struct {
	Key   string `msgpack:"key" json:"key"`
	Value string `msgpack:"value" json:"value"`
}

type SetAddArgs struct {
	Key   string `msgpack:"key" json:"key"`
	Value string `msgpack:"value" json:"value"`
}

type SetRemoveArgs struct {
	Key   string `msgpack:"key" json:"key"`
	Value string `msgpack:"value" json:"value"`
}

type SetUnionArgs struct {
	Keys []string `msgpack:"keys" json:"keys"`
}

type SetIntersectionArgs struct {
	Keys []string `msgpack:"keys" json:"keys"`
}

type SetQueryArgs struct {
	Key string `msgpack:"key" json:"key"`
}

type KeyExistsArgs struct {
	Key string `msgpack:"key" json:"key"`
}

type GetResponse struct {
	Value  string `msgpack:"value" json:"value"`
	Exists bool   `msgpack:"exists" json:"exists"`
}

type AddResponse struct {
	Value int32 `msgpack:"value" json:"value"`
}

type DelResponse struct {
	Key string `msgpack:"key" json:"key"`
}

type ListRangeResponse struct {
	Values []string `msgpack:"values" json:"values"`
}

type ListResponse struct {
	NewCount int32 `msgpack:"newCount" json:"newCount"`
}

type SetResponse struct {
	Value string `msgpack:"value" json:"value"`
}

type SetOperationResponse struct {
	NewCount int32 `msgpack:"new_count" json:"new_count"`
}

type SetQueryResponse struct {
	Values []string `msgpack:"values" json:"values"`
}
