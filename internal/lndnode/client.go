// Package lndnode is the concrete gRPC-to-LND implementation of
// internal/node.Node. Nothing outside this package and cmd/* imports
// lnrpc/routerrpc/grpc directly.
package lndnode

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"lnledger/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Config holds the LND connection settings, populated from the lnd config
// section (grpc_host, grpc_port, cert_path, macaroon_path, first_block and
// the *_timeout_s keys).
type Config struct {
	GRPCHost      string
	GRPCPort      string
	TLSCertPath   string
	MacaroonPath  string
	FirstBlock    int64
	RPCTimeout    time.Duration // default RPC call timeout
	SendTimeout   time.Duration // on-chain/Lightning send timeout
	ProbeTimeout  time.Duration // per fee-probe attempt timeout
	StreamTimeout time.Duration // invoice subscription idle timeout
}

type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool { return true }

// Client is the concrete internal/node.Node backed by a single LND gRPC
// connection.
type Client struct {
	conn         *grpc.ClientConn
	ln           lnrpc.LightningClient
	routerClient routerrpc.RouterClient
	Cfg          Config
}

// NewClient dials LND over TLS with macaroon auth and validates connectivity
// with GetInfo before returning.
func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macCreds := macaroonCredential{macaroon: hex.EncodeToString(macBytes)}

	addr := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", addr, err)
	}

	ln := lnrpc.NewLightningClient(conn)

	info, err := ln.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to LND (is it running? wallet unlocked?): %w", err)
	}

	logger.Info("connected to LND",
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.Uint32("block_height", info.BlockHeight),
		zap.Bool("synced_to_chain", info.SyncedToChain),
	)
	if !info.SyncedToChain {
		logger.Error("LND is not synced to chain, payments may fail until sync completes")
	}

	return &Client{
		conn:         conn,
		ln:           ln,
		routerClient: routerrpc.NewRouterClient(conn),
		Cfg:          cfg,
	}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) rpcTimeout() time.Duration {
	if c.Cfg.RPCTimeout == 0 {
		return 20 * time.Second
	}
	return c.Cfg.RPCTimeout
}
