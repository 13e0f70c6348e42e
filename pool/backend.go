package pool

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"hyc/hyc-node/config"
	"hyc/hyc-node/kv"
	merkle_tree "hyc/hyc-node/merkle-tree"
	"hyc/hyc-node/nullifier"
)

const eventStreamMaxLen = 100_000

// NewDeps builds the stores for cfg. With a nil client everything lives in memory.
// Verifier and Disburser are left for the caller.
func NewDeps(ctx context.Context, cfg *config.Config, client *redis.Client) (Deps, error) {
	var deps Deps
	commitmentParams, err := cfg.Commitments.Params()
	if err != nil {
		return deps, fmt.Errorf("commitments: %w", err)
	}
	whitelistParams, err := cfg.Whitelist.Params()
	if err != nil {
		return deps, fmt.Errorf("whitelist: %w", err)
	}

	prefix := cfg.Redis.Prefix
	var (
		commitmentStore, whitelistStore merkle_tree.Store
		whitelistLeaves                 merkle_tree.LeafLog
		denylist                        merkle_tree.Denylist
	)
	if client == nil {
		commitmentStore, whitelistStore = merkle_tree.NewMemoryStore(), merkle_tree.NewMemoryStore()
		deps.CommitmentLeaves = merkle_tree.NewMemoryLeafLog()
		whitelistLeaves = merkle_tree.NewMemoryLeafLog()
		denylist = merkle_tree.NewMemoryDenylist()
		deps.Nullifiers = nullifier.NewMemoryRegistry()
		deps.Meta = NewMemoryMetaStore()
		deps.Events = NewLogSink()
	} else {
		commitmentStore = merkle_tree.NewRedisStore(client, kv.Key(prefix, "commitments", "state"))
		whitelistStore = merkle_tree.NewRedisStore(client, kv.Key(prefix, "whitelist", "state"))
		deps.CommitmentLeaves = merkle_tree.NewRedisLeafLog(client, kv.Key(prefix, "commitments"))
		whitelistLeaves = merkle_tree.NewRedisLeafLog(client, kv.Key(prefix, "whitelist"))
		denylist = merkle_tree.NewRedisDenylist(client, kv.Key(prefix, "whitelist", "denied"))
		deps.Nullifiers = nullifier.NewRedisRegistry(client, kv.Key(prefix, "nullifiers"))
		deps.Meta = &RedisMetaStore{Client: client, Key: kv.Key(prefix, "settings")}
		deps.Events = MultiSink{
			NewLogSink(),
			&RedisSink{Client: client, Stream: kv.Key(prefix, "events"), MaxLen: eventStreamMaxLen},
		}
	}

	deps.Commitments, err = merkle_tree.NewAccumulator(ctx, commitmentParams, commitmentStore)
	if err != nil {
		return deps, fmt.Errorf("commitment tree: %w", err)
	}
	whitelistAcc, err := merkle_tree.NewAccumulator(ctx, whitelistParams, whitelistStore)
	if err != nil {
		return deps, fmt.Errorf("whitelist tree: %w", err)
	}
	deps.Whitelist = merkle_tree.NewWhitelistTree(whitelistAcc, whitelistLeaves, denylist)
	deps.Authorizer = StaticAuthorizer(cfg.Pool.Risk)
	return deps, nil
}

// InitOrOpen resumes the pool stored in deps, or creates it from cfg if there is none.
func InitOrOpen(ctx context.Context, cfg *config.Config, deps Deps) (*Pool, error) {
	p, err := Open(ctx, deps)
	if err != ErrNotInitialized {
		return p, err
	}
	settings, err := SettingsFromConfig(&cfg.Pool)
	if err != nil {
		return nil, err
	}
	return Init(ctx, settings, deps)
}
