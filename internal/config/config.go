// internal/config/config.go
// Package config 提供系统配置加载，费率/时间片等参数均可调整而不触碰调度逻辑
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backend/internal/types"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Simulation SimulationConfig `yaml:"simulation"`
	AC         ACConfig         `yaml:"ac"`
	Billing    BillingConfig    `yaml:"billing"`
	Rooms      []RoomSeed       `yaml:"rooms"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the sqlite database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig 调度器参数
type SchedulerConfig struct {
	Channels     int `yaml:"channels"`      // 服务通道数量 K
	TickSeconds  int `yaml:"tick_seconds"`  // 调度节拍长度(秒)
	QuantumTicks int `yaml:"quantum_ticks"` // 时间片：同级轮转前最多连续服务的节拍数
}

// Tick 返回节拍周期
func (c SchedulerConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// SimulationConfig 温度模拟参数
type SimulationConfig struct {
	AmbientTemp       float64            `yaml:"ambient_temp"`        // 环境温度
	RecoveryPerMinute float64            `yaml:"recovery_per_minute"` // 未服务时的回温速率(度/分)
	ReboundThreshold  float64            `yaml:"rebound_threshold"`   // IDLE 偏离目标多少度后重新请求服务
	ChangePerMinute   map[string]float64 `yaml:"change_per_minute"`   // 风速 -> 服务时温度变化率(度/分)
}

// ACConfig 空调默认设置与温度范围
type ACConfig struct {
	DefaultTargetTemp float64              `yaml:"default_target_temp"`
	DefaultFanSpeed   string               `yaml:"default_fan_speed"`
	DefaultMode       string               `yaml:"default_mode"`
	TempRanges        map[string]TempRange `yaml:"temp_ranges"` // 模式 -> 可设定范围
}

// TempRange 温度设定范围
type TempRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// BillingConfig 计费参数。费率以定点单位表示：1 元 = 360 单位，
// 取值为每服务秒的单位数，因此 6 = 1.00 元/分, 3 = 0.50 元/分, 2 = 1/3 元/分。
type BillingConfig struct {
	RateUnitsPerSecond map[string]map[string]int64 `yaml:"rate_units_per_second"` // 模式 -> 风速 -> 单位/秒
}

// RoomSeed 初始房间
type RoomSeed struct {
	ID          string  `yaml:"id"`
	DailyRate   float64 `yaml:"daily_rate"`
	InitialTemp float64 `yaml:"initial_temp"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RateLimitPerSec: 20,
			CacheTTLSeconds: 1,
		},
		Database: DatabaseConfig{Path: "hotel.db"},
		Scheduler: SchedulerConfig{
			Channels:     3,
			TickSeconds:  1,
			QuantumTicks: 10,
		},
		Simulation: SimulationConfig{
			AmbientTemp:       28.0,
			RecoveryPerMinute: 0.5,
			ReboundThreshold:  1.0,
			ChangePerMinute: map[string]float64{
				string(types.SpeedHigh): 0.6,
				string(types.SpeedMid):  0.5,
				string(types.SpeedLow):  0.4,
			},
		},
		AC: ACConfig{
			DefaultTargetTemp: 25.0,
			DefaultFanSpeed:   string(types.SpeedMid),
			DefaultMode:       string(types.ModeCool),
			TempRanges: map[string]TempRange{
				string(types.ModeCool): {Min: 18.0, Max: 25.0},
				string(types.ModeHeat): {Min: 25.0, Max: 30.0},
			},
		},
		Billing: BillingConfig{
			RateUnitsPerSecond: map[string]map[string]int64{
				string(types.ModeCool): {
					string(types.SpeedHigh): 6,
					string(types.SpeedMid):  3,
					string(types.SpeedLow):  2,
				},
				string(types.ModeHeat): {
					string(types.SpeedHigh): 6,
					string(types.SpeedMid):  3,
					string(types.SpeedLow):  2,
				},
			},
		},
		Rooms: []RoomSeed{
			{ID: "101", DailyRate: 288.0, InitialTemp: 32.0},
			{ID: "102", DailyRate: 288.0, InitialTemp: 28.0},
			{ID: "103", DailyRate: 288.0, InitialTemp: 30.0},
			{ID: "104", DailyRate: 388.0, InitialTemp: 29.0},
			{ID: "105", DailyRate: 388.0, InitialTemp: 35.0},
		},
	}
}

// Load reads the configuration from the given path, falling back to
// defaults for missing fields. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if cfg.Scheduler.Channels <= 0 {
		cfg.Scheduler.Channels = 3
	}
	if cfg.Scheduler.TickSeconds <= 0 {
		cfg.Scheduler.TickSeconds = 1
	}
	if cfg.Scheduler.QuantumTicks <= 0 {
		cfg.Scheduler.QuantumTicks = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = cfg.Scheduler.TickSeconds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验费率表单调性与温度范围
func (c *Config) Validate() error {
	for mode, rates := range c.Billing.RateUnitsPerSecond {
		low := rates[string(types.SpeedLow)]
		mid := rates[string(types.SpeedMid)]
		high := rates[string(types.SpeedHigh)]
		if low <= 0 || mid <= 0 || high <= 0 {
			return fmt.Errorf("模式 %s 的费率必须为正", mode)
		}
		if !(high >= mid && mid >= low) {
			return fmt.Errorf("模式 %s 的费率必须随风速单调递增", mode)
		}
	}
	for mode, r := range c.AC.TempRanges {
		if r.Min >= r.Max {
			return fmt.Errorf("模式 %s 的温度范围无效", mode)
		}
	}
	if !types.Speed(c.AC.DefaultFanSpeed).Valid() {
		return fmt.Errorf("无效的默认风速: %s", c.AC.DefaultFanSpeed)
	}
	if !types.Mode(c.AC.DefaultMode).Valid() {
		return fmt.Errorf("无效的默认模式: %s", c.AC.DefaultMode)
	}
	return nil
}

// TempRangeFor 返回模式对应的设定范围
func (c *Config) TempRangeFor(mode types.Mode) types.TempRange {
	r := c.AC.TempRanges[string(mode)]
	return types.TempRange{Min: r.Min, Max: r.Max}
}
