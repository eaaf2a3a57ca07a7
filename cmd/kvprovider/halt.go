package main

import (
	"context"
	"os"

	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/logging"
	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// halter is the part of the provider server a local halt needs.
type halter interface {
	Halt(inv *wasmbus.Invocation) error
}

// haltOnSignal turns the first signal on sigs into a halt invocation signed
// with the host key, so a local stop drains the provider like one sent by
// the host. If the halt cannot be built or is refused, fallback stops the
// process instead. A second signal exits immediately.
func haltOnSignal(ctx context.Context, sigs <-chan os.Signal, signer identity.Signer, srv halter, fallback func(), log *logging.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-sigs:
	}

	log.Info("shutting down...")
	inv, err := wasmbus.Halt(signer)
	if err == nil {
		err = srv.Halt(inv)
	}
	if err != nil {
		log.Error("halt refused, cancelling", "error", err)
		fallback()
	}

	select {
	case <-ctx.Done():
	case <-sigs:
		log.Warn("forced shutdown")
		os.Exit(1)
	}
}
