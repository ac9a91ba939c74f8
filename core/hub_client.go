package core

// gRPC client for the snapchain HubService. The proto is compiled separately
// upstream; the wire model lives in hub_types.go / hub_wire.go and the stub
// interface below keeps the rest of the pipeline independent of transport.

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcbackoff "google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/RyanKung/snaprag/pkg/utils"
)

const (
	hubConnectTimeout = 5 * time.Second
	hubRequestTimeout = 30 * time.Second

	methodGetInfo        = "/snapchain.HubService/GetInfo"
	methodGetShardChunks = "/snapchain.HubService/GetShardChunks"
	methodGetLinksByFid  = "/snapchain.HubService/GetLinksByFid"
)

// HubClient is the pipeline's typed view of the upstream node.
type HubClient interface {
	GetInfo(ctx context.Context) (*GetInfoResponse, error)
	// GetShardChunks returns the chunks of shard in [start, stop), ascending
	// by block number. A nil stop means "up to the hub's current tip".
	GetShardChunks(ctx context.Context, shardID uint32, start uint64, stop *uint64) ([]*ShardChunk, error)
	Close() error
}

// GRPCHubClient talks to a hub over a single multiplexed channel with
// bounded retry on transient failures.
type GRPCHubClient struct {
	conn     *grpc.ClientConn
	endpoint string
	// maxBatch caps stop-start on chunk requests; 0 means no cap.
	maxBatch uint32
	retries  uint64
	log      *zap.Logger
}

// NewGRPCHubClient dials the hub. The endpoint may carry an http:// or
// grpc:// scheme prefix, which is stripped for dialing.
func NewGRPCHubClient(endpoint string, maxBatch uint32, log *zap.Logger) (*GRPCHubClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	target := endpoint
	for _, prefix := range []string{"http://", "https://", "grpc://"} {
		target = strings.TrimPrefix(target, prefix)
	}
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(hubCodec{})),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           grpcbackoff.DefaultConfig,
			MinConnectTimeout: hubConnectTimeout,
		}),
	)
	if err != nil {
		return nil, utils.Wrap(err, "dial hub")
	}
	log.Info("hub client created", zap.String("endpoint", target))
	return &GRPCHubClient{
		conn:     conn,
		endpoint: target,
		maxBatch: maxBatch,
		retries:  4,
		log:      log,
	}, nil
}

// Close tears down the channel.
func (c *GRPCHubClient) Close() error {
	return c.conn.Close()
}

// invoke runs one RPC with a request timeout and bounded, jittered
// exponential backoff on transient failures. Permanent upstream errors
// surface immediately.
func (c *GRPCHubClient) invoke(ctx context.Context, method string, req wireAppender, resp wireParser) error {
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, hubRequestTimeout)
		defer cancel()
		err := c.conn.Invoke(callCtx, method, req, resp)
		if err == nil {
			return nil
		}
		if IsPermanentRPC(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if IsTransientRPC(err) {
			c.log.Warn("hub call retrying",
				zap.String("method", method), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 3 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx))
}

// GetInfo returns the hub's shard tips.
func (c *GRPCHubClient) GetInfo(ctx context.Context) (*GetInfoResponse, error) {
	resp := new(GetInfoResponse)
	if err := c.invoke(ctx, methodGetInfo, getInfoRequest{}, resp); err != nil {
		return nil, utils.Wrap(err, "get info")
	}
	return resp, nil
}

// GetShardChunks fetches [start, stop) for one shard. The window is clamped
// to the configured batch size and responses are kept in ascending block
// order; the hub already guarantees ordering, the sort here is defensive.
func (c *GRPCHubClient) GetShardChunks(ctx context.Context, shardID uint32, start uint64, stop *uint64) ([]*ShardChunk, error) {
	req := &ShardChunksRequest{ShardID: shardID, StartBlockNumber: start}
	if stop != nil {
		capped := *stop
		if c.maxBatch > 0 && capped > start+uint64(c.maxBatch) {
			capped = start + uint64(c.maxBatch)
		}
		req.StopBlockNumber = &capped
	} else if c.maxBatch > 0 {
		capped := start + uint64(c.maxBatch)
		req.StopBlockNumber = &capped
	}

	resp := new(ShardChunksResponse)
	if err := c.invoke(ctx, methodGetShardChunks, req, resp); err != nil {
		return nil, utils.Wrapf(err, "get shard chunks shard=%d start=%d", shardID, start)
	}
	chunks := resp.ShardChunks
	sortChunksByBlock(chunks)
	return chunks, nil
}

// GetLinksByFid is the sparse backfill query; not on the hot path.
func (c *GRPCHubClient) GetLinksByFid(ctx context.Context, fid uint64, limit uint32) ([]*UserMessage, error) {
	req := &linksByFidRequest{FID: fid, Limit: limit}
	resp := new(messagesResponse)
	if err := c.invoke(ctx, methodGetLinksByFid, req, resp); err != nil {
		return nil, utils.Wrapf(err, "get links by fid %d", fid)
	}
	return resp.Messages, nil
}

// sortChunksByBlock orders chunks ascending by block number, moving
// headerless chunks to the back behind every numbered chunk.
func sortChunksByBlock(chunks []*ShardChunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0; j-- {
			a, aok := chunks[j-1].BlockNumber()
			b, bok := chunks[j].BlockNumber()
			if !bok || (aok && a <= b) {
				break
			}
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}
