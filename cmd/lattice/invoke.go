package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/pkg/lattice"
)

func newInvokeCmd(v *viper.Viper) *cobra.Command {
	var (
		req     lattice.InvocationRequest
		payload string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Sign and send an invocation",
		Long: `Sign an invocation with the host key and wait for the response.

The payload is JSON, given with --json or piped on stdin, and is sent as
msgpack. A namespace shaped like an actor key calls that actor; anything
else is a capability contract served by --provider.

Examples:
  lattice invoke --actor MB2Z... --provider VAHN... \
      --namespace wasmcloud:keyvalue --op Set --json '{"key":"k","value":"v"}'
  echo '{"key":"k"}' | lattice invoke --actor MB2Z... --provider VAHN... \
      --namespace wasmcloud:keyvalue --op Get`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolveNames(v, &req.ActorKey, &req.ProviderKey, &req.Namespace); err != nil {
				return err
			}
			data, err := readPayload(payload, os.Stdin)
			if err != nil {
				return err
			}
			req.Payload, err = jsonToMsgpack(data)
			if err != nil {
				return err
			}
			return withLattice(v, "invoke", func(ctx context.Context, c *lattice.Client, out *cli.Output) error {
				return invoke(ctx, c, out, req)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.ActorKey, "actor", "", "calling actor public key")
	f.StringVar(&req.Namespace, "namespace", "", "capability contract id, or an actor key")
	f.StringVar(&req.Operation, "op", "", "operation name")
	f.StringVar(&req.Binding, "binding", "", "link name (default \"default\")")
	f.StringVar(&req.ProviderKey, "provider", "", "provider public key serving the contract")
	f.StringVar(&req.OriginContract, "origin-contract", "", "calling provider contract when invoking an actor")
	f.StringVar(&payload, "json", "", "JSON payload (default: stdin, or {})")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

func invoke(ctx context.Context, c *lattice.Client, out *cli.Output, req lattice.InvocationRequest) error {
	resp, err := c.PerformInvocation(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		if rerr := out.Error("invoke", errors.New(resp.Error)).
			With("invocation_id", resp.InvocationID).
			With("operation", req.Operation).
			Render(); rerr != nil {
			return rerr
		}
		return errReported
	}

	value := msgpackToValue(resp.Msg)
	if out.Format() == cli.FormatText {
		value = compactJSON(value)
	}
	kv := out.KV("invocation-response").
		Set("Invocation ID", resp.InvocationID)
	if resp.InstanceID != "" {
		kv.Set("Instance ID", resp.InstanceID)
	}
	return kv.Set("Response", value).Render()
}
