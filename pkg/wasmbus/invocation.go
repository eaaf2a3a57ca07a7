package wasmbus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
)

// OpHalt is the reserved operation of a halt invocation.
const OpHalt = "__halt"

// Invocation is a host-signed call envelope. It is not modified after
// construction; any change to the addressed fields or payload invalidates it.
type Invocation struct {
	Origin        Entity
	Target        Entity
	Operation     string
	Msg           []byte
	ID            string
	EncodedClaims string
	HostID        string
}

// NewInvocation builds and signs an invocation from origin to target.
// A signing failure means the host key is unusable and should abort the caller.
func NewInvocation(signer identity.Signer, origin, target Entity, op string, msg []byte, opts ...Option) (*Invocation, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: host key required", wberrors.ErrInvalidInput)
	}
	if origin == nil || target == nil {
		return nil, fmt.Errorf("%w: origin and target required", wberrors.ErrInvalidInput)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	issuer, err := nkey.Encode(signer)
	if err != nil {
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	if msg == nil {
		msg = []byte{}
	}

	inv := &Invocation{
		Origin:    origin,
		Target:    target,
		Operation: op,
		Msg:       msg,
		ID:        uuid.NewString(),
		HostID:    issuer,
	}

	meta := InvocationMetadata{
		InvocationHash: inv.Hash(),
		TargetURL:      inv.TargetURL(),
		OriginURL:      inv.OriginURL(),
	}
	token, err := signClaims(signer, newInvocationClaims(issuer, inv.ID, meta, o))
	if err != nil {
		return nil, err
	}
	inv.EncodedClaims = token
	return inv, nil
}

// Halt builds the invocation used to stop a local receiver. Origin and target
// are both the system actor, which no lattice subject routes to.
func Halt(signer identity.Signer, opts ...Option) (*Invocation, error) {
	system := Actor{PublicKey: SystemActor}
	return NewInvocation(signer, system, system, OpHalt, nil, opts...)
}

// IsHalt reports whether inv has the reserved halt shape.
func (inv *Invocation) IsHalt() bool {
	system := Actor{PublicKey: SystemActor}
	return inv.Operation == OpHalt && inv.Origin == Entity(system) && inv.Target == Entity(system) && len(inv.Msg) == 0
}

// OriginURL is the URL of the calling entity.
func (inv *Invocation) OriginURL() string {
	if inv.Origin == nil {
		return ""
	}
	return inv.Origin.URL()
}

// TargetURL is the URL of the target entity suffixed with the operation.
func (inv *Invocation) TargetURL() string {
	if inv.Target == nil {
		return "/" + inv.Operation
	}
	return inv.Target.URL() + "/" + inv.Operation
}

// Hash recomputes the content hash over the current fields.
func (inv *Invocation) Hash() string {
	return invocationHash(inv.OriginURL(), inv.TargetURL(), inv.Operation, inv.Msg)
}

// invocationHash is upper-case hex SHA-256 over origin_url, target_url, op and msg, in that order.
func invocationHash(originURL, targetURL, op string, msg []byte) string {
	h := sha256.New()
	h.Write([]byte(originURL))
	h.Write([]byte(targetURL))
	h.Write([]byte(op))
	h.Write(msg)
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

type invocationWire struct {
	Origin        wireEntity `msgpack:"origin"`
	Target        wireEntity `msgpack:"target"`
	Operation     string     `msgpack:"operation"`
	Msg           []byte     `msgpack:"msg"`
	ID            string     `msgpack:"id"`
	EncodedClaims string     `msgpack:"encoded_claims"`
	HostID        string     `msgpack:"host_id"`
}

var (
	_ msgpack.CustomEncoder = Invocation{}
	_ msgpack.CustomDecoder = (*Invocation)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (inv Invocation) EncodeMsgpack(enc *msgpack.Encoder) error {
	msg := inv.Msg
	if msg == nil {
		msg = []byte{}
	}
	return enc.Encode(invocationWire{
		Origin:        wireEntity{Entity: inv.Origin},
		Target:        wireEntity{Entity: inv.Target},
		Operation:     inv.Operation,
		Msg:           msg,
		ID:            inv.ID,
		EncodedClaims: inv.EncodedClaims,
		HostID:        inv.HostID,
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (inv *Invocation) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w invocationWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*inv = Invocation{
		Origin:        w.Origin.Entity,
		Target:        w.Target.Entity,
		Operation:     w.Operation,
		Msg:           w.Msg,
		ID:            w.ID,
		EncodedClaims: w.EncodedClaims,
		HostID:        w.HostID,
	}
	return nil
}

// InvocationResponse answers one invocation. Exactly one of Msg and Error
// carries the outcome.
type InvocationResponse struct {
	Msg          []byte `msgpack:"msg"`
	Error        string `msgpack:"error,omitempty"`
	InvocationID string `msgpack:"invocation_id"`
	InstanceID   string `msgpack:"instance_id,omitempty"`
}

// Success builds a response carrying msg for the given invocation id.
func Success(invocationID string, msg []byte) *InvocationResponse {
	if msg == nil {
		msg = []byte{}
	}
	return &InvocationResponse{Msg: msg, InvocationID: invocationID}
}

// Failure builds an error response for the given invocation id.
func Failure(invocationID, message string) *InvocationResponse {
	return &InvocationResponse{Msg: []byte{}, Error: message, InvocationID: invocationID}
}

// Err returns the response error, or nil for a successful response.
func (r *InvocationResponse) Err() error {
	if r == nil || r.Error == "" {
		return nil
	}
	return &ResponseError{InvocationID: r.InvocationID, Message: r.Error}
}

// ResponseError is an error reported by the receiving side of an invocation.
type ResponseError struct {
	InvocationID string
	Message      string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invocation %s: %s", e.InvocationID, e.Message)
}
