package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"debtbot/internal/domain"
)

// FormatCOP renders an amount as whole pesos with "." as thousands
// separator. Values that are not integers are returned as their string form.
func FormatCOP(v any) string {
	n, ok := toInt(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return groupThousands(n)
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	case float64:
		return domain.TruncFloat(t)
	case float32:
		return domain.TruncFloat(float64(t))
	case domain.Amount:
		return t.Int()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func groupThousands(n int64) string {
	sign := ""
	u := uint64(n)
	if n < 0 {
		sign = "-"
		u = uint64(-n)
	}
	s := strconv.FormatUint(u, 10)
	if len(s) <= 3 {
		return sign + s
	}

	var b strings.Builder
	b.WriteString(sign)
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > len(sign) {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// FormatDDMMYYYY converts an ISO-8601 date or timestamp to DD/MM/YYYY. When
// the value does not parse, the first ten characters are read as YYYY-MM-DD;
// if that fails too the input is returned unchanged.
func FormatDDMMYYYY(s string) string {
	if s == "" {
		return ""
	}
	trimmed := strings.Replace(s, "Z", "", 1)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("02/01/2006")
		}
	}

	prefix := s
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	parts := strings.Split(prefix, "-")
	if len(parts) != 3 {
		return s
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

// cop is FormatCOP with the peso sign, treating a missing amount as zero.
func cop(a domain.Amount) string {
	if a == "" {
		return "$0"
	}
	return "$" + FormatCOP(a)
}

// FormatGuide holds display-ready values of a debt line. The drafting model
// receives it next to the raw item.
func FormatGuide(line domain.DebtLine) map[string]string {
	return map[string]string{
		"placa":     line.Plate,
		"vigencia":  line.Period,
		"muniMatr":  line.Municipality,
		"deptoMatr": line.Department,
		"total":     cop(line.Total),
		"sancion":   cop(line.Penalty),
		"interes":   cop(line.Interest),
		"fechaLim":  FormatDDMMYYYY(line.DueDate),
	}
}
