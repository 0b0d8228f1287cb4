package metrics

import (
	"fmt"
	"time"

	// База часовых поясов встроена, чтобы не зависеть от образа
	_ "time/tzdata"
)

// DefaultCivilTimezone пояс, в котором строятся все разбивки по датам и часам
const DefaultCivilTimezone = "America/Chicago"

// CivilTime календарные поля момента в гражданском поясе
type CivilTime struct {
	Year    int
	Month   time.Month
	Day     int
	Hour    int
	Minute  int
	Second  int
	Weekday time.Weekday
}

// DateKey ключ дня вида 2006-01-02
func (c CivilTime) DateKey() string {
	return fmt.Sprintf("%04d-%02d-%02d", c.Year, int(c.Month), c.Day)
}

// MonthKey ключ месяца вида 2006-01
func (c CivilTime) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", c.Year, int(c.Month))
}

// CivilZone преобразует UTC моменты в календарные поля пояса с учётом перехода на летнее время
type CivilZone struct {
	loc *time.Location
}

// LoadCivilZone загружает пояс по имени IANA
func LoadCivilZone(name string) (*CivilZone, error) {
	if name == "" {
		name = DefaultCivilTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load civil timezone %q: %w", name, err)
	}
	return &CivilZone{loc: loc}, nil
}

// MustLoadCivilZone для тестов и значений по умолчанию
func MustLoadCivilZone(name string) *CivilZone {
	z, err := LoadCivilZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

// ToCivil единственная точка перевода момента в гражданское время
func (z *CivilZone) ToCivil(t time.Time) CivilTime {
	local := t.In(z.loc)
	return CivilTime{
		Year:    local.Year(),
		Month:   local.Month(),
		Day:     local.Day(),
		Hour:    local.Hour(),
		Minute:  local.Minute(),
		Second:  local.Second(),
		Weekday: local.Weekday(),
	}
}

// Location для форматирования ответов
func (z *CivilZone) Location() *time.Location {
	return z.loc
}
