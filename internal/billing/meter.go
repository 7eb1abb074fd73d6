// internal/billing/meter.go
package billing

import (
	"backend/internal/config"
	"backend/internal/types"
)

// Meter 费用计量器：按模式与风速查表计费，费率来自配置
type Meter struct {
	rates map[types.Mode]map[types.Speed]Amount // 单位/服务秒
}

func NewMeter(cfg config.BillingConfig) *Meter {
	rates := make(map[types.Mode]map[types.Speed]Amount)
	for mode, table := range cfg.RateUnitsPerSecond {
		m := make(map[types.Speed]Amount, len(table))
		for speed, units := range table {
			m[types.Speed(speed)] = Amount(units)
		}
		rates[types.Mode(mode)] = m
	}
	return &Meter{rates: rates}
}

// Rate 返回每服务秒的费率(定点单位)
func (m *Meter) Rate(mode types.Mode, speed types.Speed) Amount {
	if table, ok := m.rates[mode]; ok {
		if rate, ok := table[speed]; ok {
			return rate
		}
	}
	return 0
}

// Charge 计算连续服务 seconds 秒的费用增量。
// 定点费率下 Charge(1s) 累加 n 次与 Charge(n s) 严格相等。
func (m *Meter) Charge(mode types.Mode, speed types.Speed, seconds int64) Amount {
	return m.Rate(mode, speed) * Amount(seconds)
}
