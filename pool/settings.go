package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/redis/go-redis/v9"
	"hyc/hyc-node/config"
)

// Settings is the mutable pool configuration. DepositValue and PercentFee are fixed at Init.
type Settings struct {
	Owner        string
	Currency     string
	DepositValue big.Int
	PercentFee   uint64
	ProtocolFee  big.Int
	MaxRisk      uint8
	KillSwitch   bool
}

func SettingsFromConfig(cfg *config.PoolConfig) (Settings, error) {
	var s Settings
	deposit, err := config.ParseInt(cfg.DepositValue)
	if err != nil {
		return s, fmt.Errorf("deposit value: %w", err)
	}
	s.Owner = cfg.Owner
	s.Currency = cfg.Currency
	s.DepositValue.Set(deposit)
	s.PercentFee = cfg.PercentFee
	s.MaxRisk = cfg.MaxRisk
	return s, nil
}

// DepositAmount is what a depositor pays: the denomination plus the protocol fee.
func (s Settings) DepositAmount() *big.Int {
	return new(big.Int).Add(&s.DepositValue, &s.ProtocolFee)
}

func (s *Settings) clone() Settings {
	c := *s
	c.DepositValue = big.Int{}
	c.DepositValue.Set(&s.DepositValue)
	c.ProtocolFee = big.Int{}
	c.ProtocolFee.Set(&s.ProtocolFee)
	return c
}

type settingsJSON struct {
	Owner        string `json:"owner"`
	Currency     string `json:"currency"`
	DepositValue string `json:"deposit_value"`
	PercentFee   uint64 `json:"percent_fee"`
	ProtocolFee  string `json:"protocol_fee"`
	MaxRisk      uint8  `json:"max_risk"`
	KillSwitch   bool   `json:"kill_switch"`
}

func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(settingsJSON{
		Owner:        s.Owner,
		Currency:     s.Currency,
		DepositValue: s.DepositValue.String(),
		PercentFee:   s.PercentFee,
		ProtocolFee:  s.ProtocolFee.String(),
		MaxRisk:      s.MaxRisk,
		KillSwitch:   s.KillSwitch,
	})
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw settingsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := s.DepositValue.SetString(raw.DepositValue, 10); !ok {
		return fmt.Errorf("invalid deposit_value %q", raw.DepositValue)
	}
	if _, ok := s.ProtocolFee.SetString(raw.ProtocolFee, 10); !ok {
		return fmt.Errorf("invalid protocol_fee %q", raw.ProtocolFee)
	}
	s.Owner = raw.Owner
	s.Currency = raw.Currency
	s.PercentFee = raw.PercentFee
	s.MaxRisk = raw.MaxRisk
	s.KillSwitch = raw.KillSwitch
	return nil
}

// MetaStore persists Settings. Create fails with ErrAlreadyInitialized when settings exist.
type MetaStore interface {
	Load(ctx context.Context) (*Settings, error)
	Create(ctx context.Context, s *Settings) error
	Save(ctx context.Context, s *Settings) error
}

type MemoryMetaStore struct {
	mu       sync.Mutex
	settings *Settings
}

func NewMemoryMetaStore() *MemoryMetaStore {
	return &MemoryMetaStore{}
}

func (m *MemoryMetaStore) Load(_ context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, nil
	}
	s := m.settings.clone()
	return &s, nil
}

func (m *MemoryMetaStore) Create(_ context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings != nil {
		return ErrAlreadyInitialized
	}
	c := s.clone()
	m.settings = &c
	return nil
}

func (m *MemoryMetaStore) Save(_ context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.clone()
	m.settings = &c
	return nil
}

type RedisMetaStore struct {
	Client *redis.Client
	Key    string
}

func (m *RedisMetaStore) Load(ctx context.Context) (*Settings, error) {
	data, err := m.Client.Get(ctx, m.Key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", m.Key, err)
	}
	return &s, nil
}

func (m *RedisMetaStore) Create(ctx context.Context, s *Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := m.Client.SetNX(ctx, m.Key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyInitialized
	}
	return nil
}

func (m *RedisMetaStore) Save(ctx context.Context, s *Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.Client.Set(ctx, m.Key, data, 0).Err()
}
