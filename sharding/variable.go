package sharding

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Operator 谓词算子
type Operator int

const (
	OpEqual Operator = iota
	OpRange
)

// RangeVariable 单个取值或取值区间，由谓词抽取产生，仅供 Calculate 使用
type RangeVariable struct {
	Op    Operator
	Value any

	Begin          any
	End            any
	BeginInclusive bool
	EndInclusive   bool
}

// Eq 等值谓词
func Eq(v any) RangeVariable {
	return RangeVariable{Op: OpEqual, Value: v}
}

// Between 闭区间 [begin, end]
func Between(begin, end any) RangeVariable {
	return NewInterval(begin, true, end, true)
}

// NewInterval 区间谓词，可指定两端是否包含
func NewInterval(begin any, beginInclusive bool, end any, endInclusive bool) RangeVariable {
	return RangeVariable{
		Op:             OpRange,
		Begin:          begin,
		End:            end,
		BeginInclusive: beginInclusive,
		EndInclusive:   endInclusive,
	}
}

func (v RangeVariable) String() string {
	if v.Op == OpEqual {
		return fmt.Sprintf("=%v", v.Value)
	}
	l, r := "(", ")"
	if v.BeginInclusive {
		l = "["
	}
	if v.EndInclusive {
		r = "]"
	}
	return fmt.Sprintf("%s%v,%v%s", l, v.Begin, v.End, r)
}

// intBounds 返回整数区间的闭区间端点，非整数区间返回 ok=false
func (v RangeVariable) intBounds() (lo, hi int64, ok bool) {
	lo, okLo := toInt64(v.Begin)
	hi, okHi := toInt64(v.End)
	if !okLo || !okHi {
		return 0, 0, false
	}
	if !v.BeginInclusive {
		if lo == math.MaxInt64 {
			return 1, 0, true
		}
		lo++
	}
	if !v.EndInclusive {
		if hi == math.MinInt64 {
			return 1, 0, true
		}
		hi--
	}
	return lo, hi, true
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), x <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x <= math.MaxInt64 {
			return int64(x), true
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// hashIndex 把取值映射到 [0, mod)。整数取模，其余按字符串 xxhash
func hashIndex(v any, mod int) int {
	if n, ok := toInt64(v); ok {
		m := n % int64(mod)
		if m < 0 {
			m += int64(mod)
		}
		return int(m)
	}

	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		s = fmt.Sprint(x)
	}
	return int(xxhash.Sum64String(s) % uint64(mod))
}

// hashCandidates 计算一列谓词命中的模下标。
// narrowed=false 表示该列无法缩小范围（未出现或区间过大），调用方应取全部下标。
func hashCandidates(p Predicates, columns map[string]struct{}, mod int) (indexes []int, narrowed bool) {
	for column := range columns {
		values, found := p.lookup(column)
		if !found {
			continue
		}
		idx, ok := hashValues(values, mod)
		if !ok {
			continue
		}
		// 多个分片列同时出现时取交集
		if narrowed {
			indexes = intersect(indexes, idx)
		} else {
			indexes, narrowed = idx, true
		}
	}
	return indexes, narrowed
}

func hashValues(values []RangeVariable, mod int) ([]int, bool) {
	out := make([]int, 0, len(values))
	for _, v := range values {
		switch v.Op {
		case OpEqual:
			out = append(out, hashIndex(v.Value, mod))
		case OpRange:
			lo, hi, ok := v.intBounds()
			if !ok {
				return nil, false
			}
			if lo > hi {
				continue
			}
			// 区间跨度不小于模数时覆盖所有下标
			if hi-lo+1 >= int64(mod) || hi-lo+1 <= 0 {
				return allIndexes(mod), true
			}
			for n := lo; n <= hi; n++ {
				out = append(out, hashIndex(n, mod))
			}
		}
	}
	return out, true
}

func intersect(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, i := range b {
		set[i] = struct{}{}
	}
	out := make([]int, 0, len(a))
	for _, i := range a {
		if _, ok := set[i]; ok {
			out = append(out, i)
		}
	}
	return out
}
