package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Snapshot 为需要跨进程重启保留的账户状态子集。
type Snapshot struct {
	EntryPrice       float64    `json:"entry_price"`
	PeakBalance      float64    `json:"peak_balance"`
	InitialCapital   float64    `json:"initial_capital"`
	PositionOpenTime *time.Time `json:"position_open_time"`
}

// Store 负责把 Snapshot 持久化到本地 JSON 文件。
// 文件缺失或损坏不是错误，Load 会返回全零默认值。
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore 创建本地状态存储。
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Load 读取本地状态文件，缺失或损坏时返回零值快照。
func (s *Store) Load() Snapshot {
	var snap Snapshot

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("读取本地状态文件失败，使用默认值", zap.Error(err))
		}
		return snap
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("本地状态文件损坏，使用默认值", zap.String("path", s.path), zap.Error(err))
		return Snapshot{}
	}

	return snap
}

// Save 把快照写入本地状态文件。
func (s *Store) Save(snap Snapshot) error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建状态目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化本地状态失败: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("保存本地状态失败: %w", err)
	}

	return nil
}

// Clear 删除本地状态文件，文件不存在时视为成功。
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("清除本地状态失败: %w", err)
	}
	return nil
}
