// internal/billing/amount.go
package billing

import (
	"math"
	"strconv"
)

// AmountScale 定点金额比例：1 元 = 360 单位。
// 取 360 是因为三档费率(1, 1/2, 1/3 元/分)换算为单位/秒后都是整数(6, 3, 2)，
// 逐秒累加不会产生舍入漂移。
const AmountScale = 360

// Amount 定点金额，避免长会话中浮点误差累积
type Amount int64

// FromYuan 将元转换为定点金额
func FromYuan(v float64) Amount {
	return Amount(math.Round(v * AmountScale))
}

// Yuan 转换回元
func (a Amount) Yuan() float64 {
	return float64(a) / AmountScale
}

// MarshalJSON 以两位小数的数字输出，与客户端展示一致
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(a.Yuan(), 'f', 2, 64)), nil
}
