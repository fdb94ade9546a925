package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading_account.json")
	store := NewStore(path, nil)

	opened := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	want := Snapshot{
		EntryPrice:       61234.5,
		PeakBalance:      1500,
		InitialCapital:   1000,
		PositionOpenTime: &opened,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	got := store.Load()
	if got.EntryPrice != want.EntryPrice {
		t.Errorf("entry_price 不一致: got %v want %v", got.EntryPrice, want.EntryPrice)
	}
	if got.PeakBalance != want.PeakBalance {
		t.Errorf("peak_balance 不一致: got %v want %v", got.PeakBalance, want.PeakBalance)
	}
	if got.InitialCapital != want.InitialCapital {
		t.Errorf("initial_capital 不一致: got %v want %v", got.InitialCapital, want.InitialCapital)
	}
	if got.PositionOpenTime == nil || !got.PositionOpenTime.Equal(opened) {
		t.Errorf("position_open_time 不一致: got %v want %v", got.PositionOpenTime, opened)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"), nil)

	got := store.Load()
	if got.EntryPrice != 0 || got.PeakBalance != 0 || got.InitialCapital != 0 || got.PositionOpenTime != nil {
		t.Errorf("缺失文件应返回零值快照, got %+v", got)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading_account.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("写入损坏文件失败: %v", err)
	}

	store := NewStore(path, nil)
	got := store.Load()
	if got != (Snapshot{}) {
		t.Errorf("损坏文件应返回零值快照, got %+v", got)
	}
}

func TestStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading_account.json")
	store := NewStore(path, nil)

	if err := store.Save(Snapshot{EntryPrice: 100}); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear 失败: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Clear 后文件仍然存在")
	}

	// 重复清除不应报错
	if err := store.Clear(); err != nil {
		t.Errorf("重复 Clear 报错: %v", err)
	}
}
